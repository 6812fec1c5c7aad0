package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/toolrank-io/toolrank/internal/core/domain"
)

func TestLoadTunablesDefaultsWhenPathUnset(t *testing.T) {
	tun, err := LoadTunables("")
	if err != nil {
		t.Fatalf("LoadTunables() error = %v", err)
	}
	if tun.Dedup.Strategy != domain.DedupRRFEnhanced {
		t.Fatalf("expected default dedup strategy %s, got %s", domain.DedupRRFEnhanced, tun.Dedup.Strategy)
	}
	if tun.Dedup.RRFK != domain.DefaultRRFK {
		t.Fatalf("expected default rrf k %d, got %d", domain.DefaultRRFK, tun.Dedup.RRFK)
	}
	if tun.ResultSetMerge.MinDiverseResults != 5 {
		t.Fatalf("expected default min diverse results 5, got %d", tun.ResultSetMerge.MinDiverseResults)
	}
	if tun.SkipGains.GainCap != 60 {
		t.Fatalf("expected default gain cap 60, got %.0f", tun.SkipGains.GainCap)
	}
}

func TestLoadTunablesAppliesPartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	raw := []byte(`dedup:
  rrf_k: 75
  source_weights:
    semantic: 1.0
    structured: 0.5
result_set_merge:
  min_diverse_results: 8
skip_gains:
  gain_cap: 50
`)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write tunables fixture: %v", err)
	}

	tun, err := LoadTunables(path)
	if err != nil {
		t.Fatalf("LoadTunables() error = %v", err)
	}
	if tun.Dedup.RRFK != 75 {
		t.Fatalf("expected rrf k 75, got %d", tun.Dedup.RRFK)
	}
	if tun.Dedup.SourceWeights["structured"] != 0.5 {
		t.Fatalf("expected structured weight 0.5, got %v", tun.Dedup.SourceWeights["structured"])
	}
	if tun.Dedup.Strategy != domain.DedupRRFEnhanced {
		t.Fatalf("expected normalized default strategy, got %s", tun.Dedup.Strategy)
	}
	if tun.ResultSetMerge.MinDiverseResults != 8 {
		t.Fatalf("expected min diverse results 8, got %d", tun.ResultSetMerge.MinDiverseResults)
	}
	if tun.SkipGains.GainCap != 50 {
		t.Fatalf("expected gain cap 50, got %.0f", tun.SkipGains.GainCap)
	}
	if len(tun.SkipGains.Gains) == 0 {
		t.Fatalf("expected default gains to backfill an empty gain table")
	}
}

func TestLoadTunablesRejectsMissingFile(t *testing.T) {
	_, err := LoadTunables(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing tunables file")
	}
}

func TestLoadTunablesRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	if err := os.WriteFile(path, []byte("dedup: ["), 0o600); err != nil {
		t.Fatalf("write tunables fixture: %v", err)
	}

	if _, err := LoadTunables(path); err == nil {
		t.Fatalf("expected error for malformed tunables file")
	}
}
