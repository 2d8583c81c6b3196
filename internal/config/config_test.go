package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
session:
  ttl: 2h
  max_turns: 5
cache:
  strategy: lru
  max_entries: 50
pool:
  acquire_timeout: 250ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Session.TTL != 2*time.Hour || cfg.Session.MaxTurns != 5 {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Cache.Strategy != "lru" || cfg.Cache.MaxEntries != 50 {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if cfg.Pool.AcquireTimeout != 250*time.Millisecond {
		t.Errorf("acquire_timeout = %v", cfg.Pool.AcquireTimeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Batch.Timeout != 25*time.Second {
		t.Errorf("batch timeout default = %v, want 25s", cfg.Batch.Timeout)
	}
}

func TestLoad_expandsEnvironment(t *testing.T) {
	t.Setenv("SHITSUMON_TEST_KEY", "sk-test")
	path := writeConfig(t, `
collaborators:
  llm:
    enabled: true
    api_key: "${SHITSUMON_TEST_KEY}"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Collaborators.LLM.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.Collaborators.LLM.APIKey)
	}
}

func TestLoad_validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad strategy", "cache:\n  strategy: fifo\n", "Strategy"},
		{"threshold above one", "classifier:\n  confidence_threshold: 1.5\n", "ConfidenceThreshold"},
		{"max below min", "pool:\n  min_connections: 10\n  max_connections: 5\n", "MaxConnections"},
		{"llm without key", "collaborators:\n  llm:\n    enabled: true\n", "APIKey"},
		{"negative duration", "batch:\n  timeout: -1s\n", "batch.timeout"},
		{"spell distance too wide", "quality:\n  spell_max_distance: 4\n", "SpellMaxDistance"},
		{"relation strength above one", "expansion:\n  relations:\n    - {from: finance, to: legal, strength: 1.5}\n", "Relations[0].Strength"},
		{"relation without target", "expansion:\n  relations:\n    - {from: finance, strength: 0.5}\n", "Relations[0].To"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Classifier.ConfidenceThreshold != 0.6 {
		t.Errorf("threshold = %v", cfg.Classifier.ConfidenceThreshold)
	}
	if cfg.Session.MaxTurns != 20 || cfg.Session.TTL != 24*time.Hour {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
	if cfg.Batch.MaxBatchSize != 1000 || cfg.Batch.QueueThreshold != 50 || cfg.Batch.MaxConcurrent != 50 {
		t.Errorf("batch defaults = %+v", cfg.Batch)
	}
	if !cfg.Session.EnabledOrDefault() || !cfg.Monitoring.EnabledOrDefault() || !cfg.Quality.SpellCheckOrDefault() {
		t.Error("enabled flags should default to true")
	}
	if cfg.Expansion.MaxExpandedQueries != 5 || cfg.Expansion.MaxDomains != 5 {
		t.Errorf("expansion defaults = %+v", cfg.Expansion)
	}
}

func TestLoad_exampleConfig(t *testing.T) {
	t.Setenv("NEO4J_PASSWORD", "secret")
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if cfg.Collaborators.KnowledgeGraph.Password != "secret" {
		t.Errorf("password: got %q", cfg.Collaborators.KnowledgeGraph.Password)
	}
	if !cfg.Collaborators.NLP.Enabled || cfg.Collaborators.LLM.Enabled {
		t.Errorf("collaborators: %+v", cfg.Collaborators)
	}
	if cfg.Batch.Timeout != 25*time.Second {
		t.Errorf("batch timeout: got %v", cfg.Batch.Timeout)
	}
	if cfg.Quality.SpellMaxDistance != 2 || cfg.Quality.SpellMinWordLength != 4 {
		t.Errorf("spell limits: %+v", cfg.Quality)
	}
	if len(cfg.Expansion.Relations) != 1 || cfg.Expansion.Relations[0].To != "real_estate" {
		t.Errorf("relations: %+v", cfg.Expansion.Relations)
	}
}
