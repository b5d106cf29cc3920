// Package adzuna fetches job offers from the Adzuna public search API.
package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/source"
)

const (
	Name = "adzuna"

	baseURL     = "https://api.adzuna.com/v1/api/jobs"
	pageSize    = 50
	maxPages    = 3
	httpTimeout = 15 * time.Second
)

// Fetcher queries Adzuna. Without credentials Fetch returns no postings and no error.
type Fetcher struct {
	AppID   string
	AppKey  string
	Country string
	BaseURL string

	client *http.Client
	logger *zap.Logger
}

func New(appID, appKey, country string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if country == "" {
		country = "gb"
	}
	return &Fetcher{
		AppID:   strings.TrimSpace(appID),
		AppKey:  strings.TrimSpace(appKey),
		Country: strings.ToLower(country),
		BaseURL: baseURL,
		client:  &http.Client{Timeout: httpTimeout},
		logger:  logger.With(zap.String("source", Name)),
	}
}

var _ source.Fetcher = (*Fetcher)(nil)

func (f *Fetcher) Name() string { return Name }

type response struct {
	Results []result `json:"results"`
	Count   int      `json:"count"`
}

type result struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Company      named  `json:"company"`
	Location     named  `json:"location"`
	RedirectURL  string `json:"redirect_url"`
	Created      string `json:"created"`
	ContractTime string `json:"contract_time"`
	ContractType string `json:"contract_type"`
}

type named struct {
	DisplayName string `json:"display_name"`
}

// Fetch pages through results until a short page, the page cap or q.Limit.
func (f *Fetcher) Fetch(ctx context.Context, q source.Query) ([]model.Posting, error) {
	if f.AppID == "" || f.AppKey == "" {
		f.logger.Warn("adzuna credentials are not set, skipping fetch")
		return nil, nil
	}

	what := q.SearchText()
	if q.Remote && !strings.Contains(strings.ToLower(what), "remote") {
		what = strings.TrimSpace(what + " remote")
	}

	var postings []model.Posting
	for page := 1; page <= maxPages; page++ {
		batch, err := f.fetchPage(ctx, what, q.Location, page)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", source.ErrUnavailable, page, err)
		}
		for _, r := range batch {
			p := r.toPosting()
			p.SearchTerm = q.Keywords
			postings = append(postings, p)
		}
		if q.Limit > 0 && len(postings) >= q.Limit {
			return postings[:q.Limit], nil
		}
		if len(batch) < pageSize {
			break
		}
	}

	return postings, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, what, where string, page int) ([]result, error) {
	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(f.BaseURL, "/"), f.Country, page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(pageSize))
	params.Set("what", what)
	if where != "" {
		params.Set("where", where)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	f.logger.Debug("make request", zap.String("what", what), zap.String("where", where), zap.Int("page", page))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded response
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded.Results, nil
}

func (r result) toPosting() model.Posting {
	p := model.Posting{
		Source:      Name,
		SourceID:    r.ID,
		Title:       strings.TrimSpace(source.PlainText(r.Title)),
		Company:     strings.TrimSpace(r.Company.DisplayName),
		Location:    strings.TrimSpace(r.Location.DisplayName),
		Description: source.PlainText(r.Description),
		URL:         r.RedirectURL,
		JobType:     jobType(r.ContractTime, r.ContractType),
	}
	p.Remote = strings.Contains(strings.ToLower(p.Title+" "+p.Location), "remote")
	if created, err := time.Parse(time.RFC3339, r.Created); err == nil {
		p.PostedAt = created.UTC()
	}
	return p
}

func jobType(contractTime, contractType string) string {
	switch {
	case contractType == "contract":
		return "contract"
	case contractTime == "part_time":
		return "parttime"
	case contractTime == "full_time":
		return "fulltime"
	default:
		return ""
	}
}
