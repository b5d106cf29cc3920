package source

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
)

type stubFetcher struct {
	name     string
	postings []model.Posting
	err      error
}

func (s stubFetcher) Name() string { return s.name }

func (s stubFetcher) Fetch(context.Context, Query) ([]model.Posting, error) {
	return s.postings, s.err
}

func TestMultiMergesAndToleratesPartialFailure(t *testing.T) {
	m := NewMulti(zap.NewNop(),
		stubFetcher{name: "a", postings: []model.Posting{{Title: "A1"}, {Title: "A2"}}},
		stubFetcher{name: "b", err: ErrUnavailable},
		stubFetcher{name: "c", postings: []model.Posting{{Title: "C1"}}},
	)

	postings, err := m.Fetch(context.Background(), Query{Keywords: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(postings) != 3 || postings[0].Title != "A1" || postings[2].Title != "C1" {
		t.Fatalf("unexpected postings %+v", postings)
	}
	if m.Name() != "a+b+c" {
		t.Fatalf("unexpected name %q", m.Name())
	}

	limited, err := m.Fetch(context.Background(), Query{Keywords: "x", Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("expected 2 postings, got %d (%v)", len(limited), err)
	}
}

func TestMultiFailsWhenAllFail(t *testing.T) {
	m := NewMulti(nil,
		stubFetcher{name: "a", err: ErrUnavailable},
		stubFetcher{name: "b", err: errors.New("boom")},
	)

	_, err := m.Fetch(context.Background(), Query{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable in joined error, got %v", err)
	}

	if _, err := NewMulti(nil).Fetch(context.Background(), Query{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without fetchers, got %v", err)
	}
}

func TestLimitedStopsOnCancelledContext(t *testing.T) {
	l := NewLimited(stubFetcher{name: "a", postings: []model.Posting{{Title: "A"}}}, 60, 1)

	postings, err := l.Fetch(context.Background(), Query{})
	if err != nil || len(postings) != 1 {
		t.Fatalf("unexpected result %v %v", postings, err)
	}
	if l.Name() != "a" {
		t.Fatalf("unexpected name %q", l.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Fetch(ctx, Query{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "  plain   text\n here ", want: "plain text here"},
		{in: "<p>Hello</p><ul><li>SQL</li><li>Python</li></ul><script>x()</script>", want: "Hello SQL Python"},
		{in: "Fish &amp; chips", want: "Fish & chips"},
	}
	for _, tt := range tests {
		if got := PlainText(tt.in); got != tt.want {
			t.Fatalf("PlainText(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestQuerySearchText(t *testing.T) {
	q := Query{Keywords: "data analyst", JobTypes: []string{"Student", "fulltime", "apprentice"}}
	if got := q.SearchText(); got != "data analyst student trainee" {
		t.Fatalf("unexpected search text %q", got)
	}

	q = Query{Keywords: "graduate analyst", JobTypes: []string{"graduate"}}
	if got := q.SearchText(); got != "graduate analyst" {
		t.Fatalf("unexpected search text %q", got)
	}
}
