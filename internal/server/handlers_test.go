package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/finder"
	"github.com/hyperjump/shitsumon/internal/metrics"
	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/optimizer"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	cfg := *config.Default()
	off := false
	cfg.Monitoring.Enabled = &off
	if mutate != nil {
		mutate(&cfg)
	}
	m := metrics.New(prometheus.NewRegistry())
	f := finder.New(cfg, finder.WithMetrics(m))
	t.Cleanup(func() { _ = f.Close() })
	srv := NewServer(f, m, &cfg.Server, zap.NewNop())
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleFind(t *testing.T) {
	_, h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/api/v1/find", findRequest{
		Query:   "Compare react vs vue",
		Mode:    models.ModeComprehensive,
		Context: &models.QueryContext{SessionID: "s-1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var res models.QueryFinderResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Classification.Type != models.QuestionComparative {
		t.Errorf("type: got %s", res.Classification.Type)
	}
	if res.Quality == nil {
		t.Error("expected quality assessment in comprehensive mode")
	}
	if res.SessionID != "s-1" {
		t.Errorf("session: got %q", res.SessionID)
	}
}

func TestHandleFind_BadRequests(t *testing.T) {
	_, h := newTestServer(t, nil)
	tests := []struct {
		name string
		body interface{}
	}{
		{"invalid json", "{"},
		{"empty query", findRequest{Query: "  "}},
		{"unknown mode", findRequest{Query: "what is churn", Mode: "turbo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/find", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", w.Code)
			}
		})
	}
}

func TestHandleFind_BodyTooLarge(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 1024 })
	body := fmt.Sprintf(`{"query": %q}`, strings.Repeat("a", 4096))
	w := do(t, h, http.MethodPost, "/api/v1/find", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestHandleBatch(t *testing.T) {
	_, h := newTestServer(t, nil)
	w := do(t, h, http.MethodPost, "/api/v1/batch", batchRequest{
		Queries: []string{"What is customer lifetime value?", "", "Compare react vs vue"},
		Mode:    models.ModeStandard,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var res models.BatchProcessingResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("counts: total %d succeeded %d failed %d", res.Total, res.Succeeded, res.Failed)
	}
	if len(res.Results) != 3 || res.Results[2].Query != "Compare react vs vue" {
		t.Errorf("results out of order: %+v", res.Results)
	}
}

func TestHandleBatch_TooLarge(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) { c.Batch.MaxBatchSize = 2 })
	w := do(t, h, http.MethodPost, "/api/v1/batch", batchRequest{Queries: []string{"a", "b", "c"}})
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("submit batch: %w", optimizer.ErrQueueFull), http.StatusTooManyRequests},
		{optimizer.ErrPoolExhausted, http.StatusTooManyRequests},
		{fmt.Errorf("%w: 3 queries", finder.ErrBatchTooLarge), http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandleClassifyAndExpand(t *testing.T) {
	_, h := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/api/v1/classify", findRequest{Query: "How to set up a marketing campaign?"})
	var cls models.ClassificationResult
	if err := json.NewDecoder(w.Body).Decode(&cls); err != nil {
		t.Fatal(err)
	}
	if cls.Type != models.QuestionProcedural {
		t.Errorf("classify: got %s", cls.Type)
	}

	w = do(t, h, http.MethodPost, "/api/v1/expand", findRequest{Query: "What pricing strategy works for our ecommerce store?"})
	var exp models.ExpansionResult
	if err := json.NewDecoder(w.Body).Decode(&exp); err != nil {
		t.Fatal(err)
	}
	if len(exp.PrimaryDomains) == 0 {
		t.Error("expand: expected at least one primary domain")
	}
}

func TestHandleAssess(t *testing.T) {
	_, h := newTestServer(t, nil)

	w := do(t, h, http.MethodPost, "/api/v1/assess", assessRequest{Query: "compare react vs vue"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var qa models.QualityAssessment
	if err := json.NewDecoder(w.Body).Decode(&qa); err != nil {
		t.Fatal(err)
	}
	if qa.QuestionType != models.QuestionComparative {
		t.Errorf("type: got %s", qa.QuestionType)
	}
	if len(qa.DimensionScores) != len(models.Dimensions) {
		t.Errorf("dimensions: got %d", len(qa.DimensionScores))
	}

	w = do(t, h, http.MethodPost, "/api/v1/assess", assessRequest{Query: "q", Domain: "astrology"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown domain: got %d, want 400", w.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	_, h := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/api/v1/find", findRequest{
		Query:   "What is customer lifetime value?",
		Context: &models.QueryContext{SessionID: "s-42"},
	})

	w := do(t, h, http.MethodGet, "/api/v1/sessions/s-42", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var sess models.ConversationSession
	if err := json.NewDecoder(w.Body).Decode(&sess); err != nil {
		t.Fatal(err)
	}
	if len(sess.Turns) != 1 {
		t.Errorf("turns: got %d, want 1", len(sess.Turns))
	}

	if w := do(t, h, http.MethodGet, "/api/v1/sessions/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing session: got %d, want 404", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/api/v1/sessions/s-42", nil); w.Code != http.StatusOK {
		t.Errorf("delete: got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/sessions/s-42", nil); w.Code != http.StatusNotFound {
		t.Errorf("after delete: got %d, want 404", w.Code)
	}
}

func TestHandleSessions_Disabled(t *testing.T) {
	_, h := newTestServer(t, func(c *config.Config) {
		off := false
		c.Session.Enabled = &off
	})
	if w := do(t, h, http.MethodGet, "/api/v1/sessions/s-1", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleStatusHealthMetrics(t *testing.T) {
	_, h := newTestServer(t, nil)
	do(t, h, http.MethodPost, "/api/v1/find", findRequest{Query: "What is churn?"})

	w := do(t, h, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var st struct {
		Finder   finder.Stats `json:"finder"`
		Sessions int          `json:"sessions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Finder.TotalQueries != 1 || st.Sessions != 1 {
		t.Errorf("status: got %+v", st)
	}

	if w := do(t, h, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shitsumon_queries_total") {
		t.Error("metrics: expected shitsumon_queries_total")
	}
}
