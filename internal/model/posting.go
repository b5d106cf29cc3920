package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EnrichmentState tracks where a posting is in the enrichment lifecycle.
type EnrichmentState string

const (
	Unenriched EnrichmentState = "unenriched"
	Enriching  EnrichmentState = "enriching"
	Enriched   EnrichmentState = "enriched"
)

// Company size buckets assigned by enrichment.
const (
	SizeStartup    = "startup"
	SizeSmall      = "small"
	SizeMedium     = "medium"
	SizeLarge      = "large"
	SizeEnterprise = "enterprise"
	SizeUnknown    = "unknown"
)

// Posting is a job posting as it is stored and scored.
type Posting struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	SourceID    string    `json:"source_id,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Remote      bool      `json:"remote"`
	JobType     string    `json:"job_type,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	SearchTerm  string    `json:"search_term,omitempty"`
	PostedAt    time.Time `json:"posted_at,omitempty"`

	Skills      []string `json:"skills,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	CompanySize string   `json:"company_size,omitempty"`

	Enrichment     EnrichmentState `json:"enrichment"`
	EnrichAttempts int             `json:"enrich_attempts,omitempty"`
	EnrichError    string          `json:"enrich_error,omitempty"`

	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	RefreshCount int       `json:"refresh_count"`
}

// Derived holds the attributes computed by enrichment.
type Derived struct {
	Skills      []string `json:"skills"`
	Industry    string   `json:"industry"`
	CompanySize string   `json:"company_size"`
}

// Enriched reports whether derived attributes are available.
func (p *Posting) Enriched() bool {
	return p.Enrichment == Enriched
}

// EnsureFingerprint computes the fingerprint when it is not set yet and returns it.
func (p *Posting) EnsureFingerprint() string {
	if p.Fingerprint == "" {
		p.Fingerprint = Fingerprint(p.Title, p.Company, p.Location)
	}
	return p.Fingerprint
}

// Fingerprint returns the deduplication key of a posting: a sha256 over the
// normalised title, company and location.
func Fingerprint(title, company, location string) string {
	key := strings.Join([]string{
		Normalize(title),
		Normalize(company),
		Normalize(location),
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases s, trims it and collapses inner whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeList normalises every entry, dropping empties and duplicates while
// keeping the first-seen order.
func NormalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := Normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Filters narrows a store query.
type Filters struct {
	Keywords []string
	Location string
	// IncludeRemote also returns remote postings when Location is set.
	IncludeRemote bool
	JobTypes      []string
	SeenSince     time.Time
	Enrichment    EnrichmentState
	Limit         int
}
