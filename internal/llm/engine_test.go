package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/models"
)

func TestParseActions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{"numbered", "1. Segment customers\n2) Compare cohorts\n", 0, []string{"Segment customers", "Compare cohorts"}},
		{"bullets and blanks", "- Check churn\n\n* Review pricing\n• Check churn", 0, []string{"Check churn", "Review pricing"}},
		{"quoted", `"Plot revenue by month"`, 0, []string{"Plot revenue by month"}},
		{"limited", "a\nb\nc\nd", 2, []string{"a", "b"}},
		{"empty", "  \n ", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseActions(tt.content, tt.limit))
		})
	}
}

func TestUserPrompt(t *testing.T) {
	p := userPrompt(ActionRequest{
		Query:    "why did churn rise",
		Type:     models.QuestionDiagnostic,
		Domains:  []models.BusinessDomain{models.DomainECommerce},
		Entities: []models.Entity{{Text: "Q3"}},
		History:  []string{"what is churn"},
	}, 2)
	assert.Contains(t, p, "Question: why did churn rise")
	assert.Contains(t, p, "Intent: diagnostic")
	assert.Contains(t, p, "Domains: e-commerce")
	assert.Contains(t, p, "Entities: Q3")
	assert.Contains(t, p, "- what is churn")
	assert.Contains(t, p, "at most 2 actions")
}

func TestOpenAIEngine_SuggestActions(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "1. Break revenue down by region\n2. Compare against last quarter\n3. Check seasonality\n4. Extra"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 12, "total_tokens": 22}
		}`))
	}))
	defer srv.Close()

	e := NewOpenAIEngine(config.LLMConfig{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "test-model"}, nil)
	actions, err := e.SuggestActions(context.Background(), ActionRequest{Query: "how is revenue trending", Type: models.QuestionAnalytical})
	require.NoError(t, err)
	assert.Equal(t, "test-model", gotModel)
	assert.Equal(t, []string{
		"Break revenue down by region",
		"Compare against last quarter",
		"Check seasonality",
	}, actions)

	actions, err = e.SuggestActions(context.Background(), ActionRequest{Query: " "})
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestOpenAIEngine_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEngine(config.LLMConfig{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil)
	_, err := e.SuggestActions(context.Background(), ActionRequest{Query: "q"})
	assert.Error(t, err)
}

func TestMockEngine(t *testing.T) {
	m := &MockEngine{Actions: []string{"a"}}
	got, err := m.SuggestActions(context.Background(), ActionRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	require.Len(t, m.Requests(), 1)
	assert.Equal(t, "q", m.Requests()[0].Query)
}
