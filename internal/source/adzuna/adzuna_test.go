package adzuna

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/source"
)

func TestFetchWithoutCredentialsSkips(t *testing.T) {
	f := New("", "", "dk", zap.NewNop())
	postings, err := f.Fetch(context.Background(), source.Query{Keywords: "analyst"})
	if err != nil || postings != nil {
		t.Fatalf("expected nil, nil; got %v, %v", postings, err)
	}
}

func TestFetchPagesUntilShortPage(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pages = append(pages, r.URL.Path)
		mu.Unlock()
		q := r.URL.Query()
		if q.Get("app_id") != "id" || q.Get("app_key") != "key" || q.Get("what") != "data analyst" || q.Get("where") != "Copenhagen" {
			t.Errorf("unexpected query %v", q)
		}

		count := pageSize
		if strings.HasSuffix(r.URL.Path, "/2") {
			count = 3
		}
		results := make([]map[string]any, 0, count)
		for i := 0; i < count; i++ {
			results = append(results, map[string]any{
				"id":            fmt.Sprintf("%s-%d", r.URL.Path, i),
				"title":         "<strong>Data</strong> Analyst",
				"description":   "SQL and Python",
				"company":       map[string]any{"display_name": "Acme"},
				"location":      map[string]any{"display_name": "Copenhagen"},
				"redirect_url":  "https://adzuna.example/1",
				"created":       "2025-03-01T10:00:00Z",
				"contract_time": "full_time",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "count": 53})
	}))
	defer srv.Close()

	f := New("id", "key", "DK", zap.NewNop())
	f.BaseURL = srv.URL

	postings, err := f.Fetch(context.Background(), source.Query{Keywords: "data analyst", Location: "Copenhagen"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pages) != 2 || pages[0] != "/dk/search/1" || pages[1] != "/dk/search/2" {
		t.Fatalf("unexpected pages %v", pages)
	}
	if len(postings) != pageSize+3 {
		t.Fatalf("expected %d postings, got %d", pageSize+3, len(postings))
	}

	p := postings[0]
	if p.Title != "Data Analyst" || p.Company != "Acme" || p.JobType != "fulltime" || p.PostedAt.IsZero() {
		t.Fatalf("unexpected posting %+v", p)
	}
}

func TestFetchRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		results := make([]map[string]any, pageSize)
		for i := range results {
			results[i] = map[string]any{"id": fmt.Sprint(i), "title": "Analyst"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	f := New("id", "key", "gb", zap.NewNop())
	f.BaseURL = srv.URL

	postings, err := f.Fetch(context.Background(), source.Query{Keywords: "analyst", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 10 {
		t.Fatalf("expected 10 postings, got %d", len(postings))
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := New("id", "key", "gb", zap.NewNop())
	f.BaseURL = srv.URL

	_, err := f.Fetch(context.Background(), source.Query{Keywords: "analyst"})
	if !errors.Is(err, source.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
