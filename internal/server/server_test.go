package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/store"
)

type fakeService struct {
	searchErr  error
	evalErr    error
	latest     *model.Evaluation
	enrichErr  error
	batchSize  int
	jobIDs     []string
	purged     int
	panicStats bool
}

func (f *fakeService) Search(_ context.Context, p *profile.Profile) (*pipeline.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &pipeline.SearchResult{ProfileID: p.ID}, nil
}

func (f *fakeService) Evaluate(_ context.Context, p *profile.Profile, jobIDs []string) (*model.Evaluation, error) {
	f.jobIDs = jobIDs
	eval := &model.Evaluation{ID: "eval-1", ProfileID: p.ID, Status: model.EvaluationCompleted}
	if f.evalErr != nil {
		return eval, f.evalErr
	}
	return eval, nil
}

func (f *fakeService) LatestEvaluation(context.Context, string) (*model.Evaluation, error) {
	return f.latest, nil
}

func (f *fakeService) TriggerEnrichment(_ context.Context, batchSize int) (*enrich.Status, error) {
	f.batchSize = batchSize
	if f.enrichErr != nil {
		return nil, f.enrichErr
	}
	return &enrich.Status{Claimed: 2, Enriched: 2}, nil
}

func (f *fakeService) PurgeStale(context.Context) (int, error) {
	return f.purged, nil
}

func (f *fakeService) Health(context.Context) (*model.Stats, error) {
	if f.panicStats {
		panic("boom")
	}
	return &model.Stats{Total: 3}, nil
}

func do(t *testing.T, svc Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	New(svc, Config{}, zap.NewNop()).Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	rec := do(t, &fakeService{}, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestSearch(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{name: "ok", body: `{"profile":{"id":"anna","skills":["sql"]}}`, status: http.StatusOK},
		{name: "missing profile", body: `{}`, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "malformed json", body: `{"profile":`, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "invalid profile", body: `{"profile":{"id":"anna"}}`, err: fmt.Errorf("%w: no skills", pipeline.ErrInvalidInput), status: http.StatusBadRequest, code: "invalid_input"},
		{name: "store down", body: `{"profile":{"id":"anna","skills":["sql"]}}`, err: store.Unavailable("query", errors.New("closed")), status: http.StatusServiceUnavailable, code: "store_unavailable"},
		{name: "unexpected", body: `{"profile":{"id":"anna","skills":["sql"]}}`, err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, &fakeService{searchErr: tc.err}, http.MethodPost, "/api/v1/search", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.code != "" {
				if got := errorCode(t, rec); got != tc.code {
					t.Fatalf("expected code %q, got %q", tc.code, got)
				}
				return
			}
			var res pipeline.SearchResult
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if res.ProfileID != "anna" {
				t.Fatalf("unexpected profile id %q", res.ProfileID)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, svc, http.MethodPost, "/api/v1/evaluations", `{"profile":{"id":"anna","skills":["sql"]},"job_ids":["a","b"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.jobIDs) != 2 {
		t.Fatalf("expected job ids to be passed through, got %v", svc.jobIDs)
	}

	svc = &fakeService{evalErr: errors.New("save evaluation: disk full")}
	rec = do(t, svc, http.MethodPost, "/api/v1/evaluations", `{"profile":{"id":"anna","skills":["sql"]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unsaved evaluation, got %d", rec.Code)
	}
	var res evaluateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Saved || res.Evaluation == nil || res.Evaluation.ID != "eval-1" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestLatestEvaluation(t *testing.T) {
	rec := do(t, &fakeService{}, http.MethodGet, "/api/v1/evaluations/latest", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without profile id, got %d", rec.Code)
	}

	rec = do(t, &fakeService{}, http.MethodGet, "/api/v1/evaluations/latest?profile_id=anna", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "not_found" {
		t.Fatalf("expected not_found, got %d %s", rec.Code, rec.Body.String())
	}

	svc := &fakeService{latest: &model.Evaluation{ID: "eval-9", ProfileID: "anna"}}
	rec = do(t, svc, http.MethodGet, "/api/v1/evaluations/latest?profile_id=anna", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "eval-9") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestEnrichment(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, svc, http.MethodPost, "/api/v1/enrichment", `{"batch_size":7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.batchSize != 7 {
		t.Fatalf("expected batch size 7, got %d", svc.batchSize)
	}

	svc = &fakeService{}
	rec = do(t, svc, http.MethodPost, "/api/v1/enrichment", "")
	if rec.Code != http.StatusOK || svc.batchSize != 0 {
		t.Fatalf("expected default batch, got %d with size %d", rec.Code, svc.batchSize)
	}

	svc = &fakeService{enrichErr: fmt.Errorf("enrichment: %w", pipeline.ErrNotConfigured)}
	rec = do(t, svc, http.MethodPost, "/api/v1/enrichment", "")
	if rec.Code != http.StatusServiceUnavailable || errorCode(t, rec) != "not_configured" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestPurgeAndStats(t *testing.T) {
	rec := do(t, &fakeService{purged: 4}, http.MethodPost, "/api/v1/maintenance/purge", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":4`) {
		t.Fatalf("unexpected purge response %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, &fakeService{}, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":3`) {
		t.Fatalf("unexpected stats response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRecoveryAndNotFound(t *testing.T) {
	rec := do(t, &fakeService{panicStats: true}, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != "internal" {
		t.Fatalf("expected recovered panic, got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, &fakeService{}, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
