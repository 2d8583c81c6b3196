package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/models"
)

func TestCommandArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"why did churn rise", "-mode", "fast"},
			expected: []string{"-mode", "fast", "why did churn rise"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-mode", "fast", "why did churn rise"},
			expected: []string{"-mode", "fast", "why did churn rise"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"why did churn rise"},
			expected: []string{"why did churn rise"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"compare", "plans", "-output", "json"},
			expected: []string{"-output", "json", "compare", "plans"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commandArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("commandArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"churn"}, "churn"},
		{"multiple words", []string{"what", "is", "churn"}, "what is churn"},
		{"single quoted phrase", []string{"what is churn"}, "what is churn"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestQueryContext(t *testing.T) {
	if got := queryContext("", "", ""); got != nil {
		t.Errorf("no flags: got %+v, want nil", got)
	}
	if got := queryContext("", "", "astrology"); got != nil {
		t.Errorf("unknown domains only: got %+v, want nil", got)
	}
	got := queryContext("s-1", "u-1", "finance, ecommerce,bogus")
	if got == nil {
		t.Fatal("expected a context")
	}
	if got.SessionID != "s-1" || got.UserID != "u-1" {
		t.Errorf("ids: got %+v", got)
	}
	want := []models.BusinessDomain{models.DomainFinance, models.DomainECommerce}
	if !reflect.DeepEqual(got.PreferredDomains, want) {
		t.Errorf("domains: got %v, want %v", got.PreferredDomains, want)
	}
}

func TestReadBatchInput(t *testing.T) {
	got, err := readBatchInput("", strings.NewReader("what is churn\n# skip\nwhy did sales drop\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("stdin: got %v", got)
	}

	path := filepath.Join(t.TempDir(), "queries.txt")
	if err := os.WriteFile(path, []byte("compare a vs b\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err = readBatchInput(path, strings.NewReader("ignored\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"compare a vs b"}) {
		t.Errorf("file: got %v", got)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["query"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "query is required"})
			return
		}
		_ = json.NewEncoder(w).Encode(models.QueryFinderResult{Query: body["query"].(string), Mode: models.ModeFast})
	}))
	defer srv.Close()

	var res models.QueryFinderResult
	if err := postJSON(srv.URL, map[string]string{"query": "what is churn"}, &res); err != nil {
		t.Fatal(err)
	}
	if res.Query != "what is churn" || res.Mode != models.ModeFast {
		t.Errorf("decoded: %+v", res)
	}

	err := postJSON(srv.URL, map[string]string{"query": ""}, &res)
	if err == nil || !strings.Contains(err.Error(), "query is required") {
		t.Errorf("expected server error message, got %v", err)
	}
}

func TestInitializeComponents_defaults(t *testing.T) {
	cfg := config.Default()
	c := initializeComponents(context.Background(), cfg, zap.NewNop())
	defer func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()
	if c.Finder == nil || c.Metrics == nil {
		t.Fatal("expected finder and metrics")
	}
	if c.graph != nil {
		t.Error("knowledge graph should be off by default")
	}
	res := c.Finder.Find(context.Background(), "Why are our sales dropping this quarter?", models.ModeFast, nil)
	if res.Error != "" {
		t.Errorf("Find: %s", res.Error)
	}
	if res.Classification.Type != models.QuestionDiagnostic {
		t.Errorf("type: got %s, want diagnostic", res.Classification.Type)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("loadConfig(default) resolved = %q, want %q", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 8080 {
		t.Errorf("cfg: debug=%v port=%d", cfg.Debug, cfg.Server.Port)
	}
}

func TestLoadConfig_defaultsWhenNothingFound(t *testing.T) {
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("system config present")
	}
	chdir(t, t.TempDir())

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved = %q, want empty", resolved)
	}
	if cfg.Server.Port != config.Default().Server.Port {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: 9999
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("loadConfig(explicit) resolved = %q, want %q", resolved, configPath)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("cfg.Server.Port = %d, want 9999", cfg.Server.Port)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing path should fail")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}
