package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Port)
	}
	if cfg.Strategy != "cv-llm" {
		t.Errorf("default strategy = %q, want cv-llm", cfg.Strategy)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("default confidence threshold = %v, want 0.9", cfg.ConfidenceThreshold)
	}
	if cfg.MaxBatchSize != 15 || cfg.TokenBudget != 120000 {
		t.Errorf("default batching = %d/%d, want 15/120000", cfg.MaxBatchSize, cfg.TokenBudget)
	}
	if cfg.LLMCallTimeout != 60*time.Second {
		t.Errorf("default call timeout = %v, want 60s", cfg.LLMCallTimeout)
	}
	if cfg.DedupeClusterDistancePx != 150 || cfg.EnsembleConfidenceFloor != 0.3 {
		t.Errorf("unexpected dedupe/ensemble defaults: %v/%v",
			cfg.DedupeClusterDistancePx, cfg.EnsembleConfidenceFloor)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DETECTION_STRATEGY", "ensemble")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("DEDUPE_CLUSTER_DISTANCE_PX", "100")
	t.Setenv("LLM_CALL_TIMEOUT_SECONDS", "30")

	cfg := Load()
	if cfg.Port != 9090 {
		t.Errorf("PORT override ignored: %d", cfg.Port)
	}
	if cfg.Strategy != "ensemble" {
		t.Errorf("DETECTION_STRATEGY override ignored: %q", cfg.Strategy)
	}
	if cfg.ConfidenceThreshold != 0.75 {
		t.Errorf("CONFIDENCE_THRESHOLD override ignored: %v", cfg.ConfidenceThreshold)
	}
	if cfg.DedupeClusterDistancePx != 100 {
		t.Errorf("DEDUPE_CLUSTER_DISTANCE_PX override ignored: %v", cfg.DedupeClusterDistancePx)
	}
	if cfg.LLMCallTimeout != 30*time.Second {
		t.Errorf("LLM_CALL_TIMEOUT_SECONDS override ignored: %v", cfg.LLMCallTimeout)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CONFIDENCE_THRESHOLD", "high")

	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("malformed PORT should fall back to default, got %d", cfg.Port)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("malformed CONFIDENCE_THRESHOLD should fall back, got %v", cfg.ConfidenceThreshold)
	}
}

func TestComponentConfigMapping(t *testing.T) {
	t.Setenv("MAX_BATCH_SIZE", "8")
	t.Setenv("REGION_PASSES", "2")
	t.Setenv("ENSEMBLE_MERGE_DISTANCE_PX", "120")
	t.Setenv("LLM_CALL_TIMEOUT_SECONDS", "30")
	t.Setenv("LLM_CALL_ATTEMPTS", "2")

	cfg := Load()
	if got := cfg.BatcherConfig().MaxBatchSize; got != 8 {
		t.Errorf("BatcherConfig.MaxBatchSize = %d, want 8", got)
	}
	if got := cfg.ProposerConfig().Passes; got != 2 {
		t.Errorf("ProposerConfig.Passes = %d, want 2", got)
	}
	if p := cfg.ProposerConfig(); p.CallTimeout != 30*time.Second || p.CallAttempts != 2 {
		t.Errorf("ProposerConfig call bounds = %v/%d, want 30s/2", p.CallTimeout, p.CallAttempts)
	}
	if got := cfg.EnsembleConfig().MergeDistancePx; got != 120 {
		t.Errorf("EnsembleConfig.MergeDistancePx = %v, want 120", got)
	}
	if got := cfg.DedupeConfig().ClusterDistancePx; got != 150 {
		t.Errorf("DedupeConfig.ClusterDistancePx = %v, want 150", got)
	}
}
