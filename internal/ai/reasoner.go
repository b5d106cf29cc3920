package ai

import (
	"context"
	"errors"
	"strings"
)

// Reasoner is a text-completion capability: prompt in, text out.
type Reasoner interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

var (
	// ErrEmptyResponse is returned when the provider answers without text.
	ErrEmptyResponse = errors.New("empty response from reasoning provider")
	// ErrRateLimited marks quota or rate-limit rejections.
	ErrRateLimited = errors.New("reasoning provider rate limited")
)

var rateLimitMarkers = []string{"rate limit", "rate_limit", "model_rate_limit", "resource_exhausted", "quota exceeded", "too many requests"}

// IsRateLimit reports whether err signals a rate or quota limit.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
