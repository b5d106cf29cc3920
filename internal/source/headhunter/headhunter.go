// Package headhunter fetches vacancies from the hh.ru API.
package headhunter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/source"
)

const (
	Name = "headhunter"

	apiURL    = "https://api.hh.ru"
	userAgent = "skillscope/1.0 (skillscope@example.com)"
	// Max value for search per page.
	perPage         = "100"
	defaultMaxPages = 3
)

type Client struct {
	token      string
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	// Areas are hh.ru area ids applied to every search.
	Areas []int
	// MaxPages bounds the number of result pages read per query.
	MaxPages int
	// FetchDetails loads the full description of every vacancy.
	FetchDetails bool
}

// New creates a client. The token is optional for vacancy search.
func New(logger *zap.Logger, token string) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:  strings.TrimSpace(token),
		APIURL: apiURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:    logger.With(zap.String("source", Name)),
		UserAgent: userAgent,
		MaxPages:  defaultMaxPages,
	}
}

var _ source.Fetcher = (*Client)(nil)

func (c *Client) Name() string { return Name }

// Fetch searches vacancies for q and maps them to postings.
func (c *Client) Fetch(ctx context.Context, q source.Query) ([]model.Posting, error) {
	vacancies, err := c.search(ctx, paramsFor(q, c.Areas))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrUnavailable, err)
	}

	postings := make([]model.Posting, 0, len(vacancies))
	for _, v := range vacancies {
		if c.FetchDetails {
			full, err := c.GetVacancy(ctx, v.ID)
			if err != nil {
				c.logger.Debug("fetching detailed vacancy failed",
					zap.String("vacancy_id", v.ID),
					zap.Error(err),
				)
			} else if full != nil {
				v = full
			}
		}
		posting := v.ToPosting()
		posting.SearchTerm = q.Keywords
		postings = append(postings, posting)
		if q.Limit > 0 && len(postings) >= q.Limit {
			break
		}
	}
	return postings, nil
}
