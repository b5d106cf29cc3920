package headhunter

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/source"
)

func vacancyItem(id, name string) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          name,
		"area":          map[string]any{"id": "1", "name": "Copenhagen"},
		"schedule":      map[string]any{"id": "remote", "name": "Remote"},
		"employment":    map[string]any{"id": "full", "name": "Full"},
		"employer":      map[string]any{"id": "e1", "name": "Acme"},
		"alternate_url": "https://hh.ru/vacancy/" + id,
		"snippet": map[string]any{
			"requirement":    "Strong <highlighttext>SQL</highlighttext> skills",
			"responsibility": "Build dashboards",
		},
		"published_at": "2025-03-01T10:00:00+0300",
	}
}

func TestFetchReadsAllPagesAndMapsVacancies(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != SearchPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("text"); got != "data analyst" {
			t.Errorf("unexpected text %q", got)
		}
		if got := r.URL.Query().Get("schedule"); got != "remote" {
			t.Errorf("unexpected schedule %q", got)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token" {
			t.Errorf("unexpected auth header %q", auth)
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_ = json.NewEncoder(gz).Encode(map[string]any{
			"items":    []any{vacancyItem(strconv.Itoa(page+1), "Data Analyst")},
			"found":    2,
			"pages":    2,
			"page":     page,
			"per_page": 1,
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), "token")
	c.APIURL = srv.URL
	c.Areas = []int{1}

	postings, err := c.Fetch(context.Background(), source.Query{Keywords: "data analyst", Remote: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", requests.Load())
	}
	if len(postings) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(postings))
	}

	p := postings[0]
	if p.Source != Name || p.SourceID != "1" || p.Company != "Acme" || p.Location != "Copenhagen" {
		t.Fatalf("unexpected posting %+v", p)
	}
	if !p.Remote || p.JobType != "fulltime" {
		t.Fatalf("unexpected remote/job type: %v %q", p.Remote, p.JobType)
	}
	if p.Description != "Strong SQL skills Build dashboards" {
		t.Fatalf("unexpected description %q", p.Description)
	}
	if p.PostedAt.IsZero() || p.PostedAt.Hour() != 7 {
		t.Fatalf("unexpected posted at %s", p.PostedAt)
	}
	if p.SearchTerm != "data analyst" {
		t.Fatalf("unexpected search term %q", p.SearchTerm)
	}
}

func TestFetchStopsAtPageLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []any{vacancyItem(strconv.Itoa(page), "Analyst")},
			"pages": 10,
			"page":  page,
		})
	}))
	defer srv.Close()

	c := New(zap.NewNop(), "")
	c.APIURL = srv.URL
	c.MaxPages = 2

	postings, err := c.Fetch(context.Background(), source.Query{Keywords: "analyst"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests.Load() != 2 || len(postings) != 2 {
		t.Fatalf("expected 2 pages, got %d requests and %d postings", requests.Load(), len(postings))
	}
}

func TestFetchBadStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(zap.NewNop(), "")
	c.APIURL = srv.URL

	_, err := c.Fetch(context.Background(), source.Query{Keywords: "x"})
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	params := paramsFor(source.Query{
		Keywords: "go developer",
		Location: "Aarhus",
		JobTypes: []string{"fulltime", "student", "unknown"},
		Limit:    20,
	}, nil)

	q := buildParams(params)
	if got := q.Get("text"); got != "go developer Aarhus" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := q["employment"]; len(got) != 2 || got[0] != "full" || got[1] != "probation" {
		t.Fatalf("unexpected employment %v", got)
	}
	if got := q.Get("per_page"); got != "20" {
		t.Fatalf("unexpected per_page %q", got)
	}
	if q.Has("area") || q.Has("period") {
		t.Fatalf("unexpected empty params encoded: %v", q)
	}
}
