// Package config loads every service tunable from the environment.
//
// All of the detection policy's historically divergent constants (dedupe
// distances, confidence thresholds, batch limits) are exposed here rather
// than hard-coded, so operators can tune a deployment without a rebuild.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/pipeline"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// Config holds the full service configuration.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Model backend
	VisionProvider string
	VisionModel    string

	// OCR
	OCRLanguage string

	// Strategy selection
	Strategy      string
	CropPaddingPx int

	// Validation
	ConfidenceThreshold float64
	ItemRetries         int
	LLMCallTimeout      time.Duration
	LLMCallAttempts     int

	// Batching
	MaxBatchSize int
	TokenBudget  int

	// Region proposals
	RegionPasses          int
	RegionMaxAxisPx       int
	RegionMergeDistancePx int

	// Deduplication
	DedupeClusterDistancePx  float64
	DedupeColinearToleranceP float64
	DedupeDistinctDistancePx float64
	DedupeModerateDistancePx float64
	DedupeMaxInstancesPerRef int
	DedupeMinAmbiguousConf   float64

	// Ensemble
	EnsembleMergeDistancePx float64
	EnsembleConfidenceFloor float64

	// Scoring and review
	ScorerDistinctDistancePx float64
	ReviewThreshold          float64
}

// Load reads the configuration from environment variables, applying the
// reference defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VisionProvider: getEnv("VISION_PROVIDER", "openai"),
		VisionModel:    getEnv("VISION_MODEL", "gpt-4o"),

		OCRLanguage: getEnv("OCR_LANGUAGE", "eng"),

		Strategy:      getEnv("DETECTION_STRATEGY", pipeline.StrategyCVLLM),
		CropPaddingPx: getEnvAsInt("CROP_PADDING_PX", 40),

		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.9),
		ItemRetries:         getEnvAsInt("VALIDATION_ITEM_RETRIES", 2),
		LLMCallTimeout:      time.Duration(getEnvAsInt("LLM_CALL_TIMEOUT_SECONDS", 60)) * time.Second,
		LLMCallAttempts:     getEnvAsInt("LLM_CALL_ATTEMPTS", 3),

		MaxBatchSize: getEnvAsInt("MAX_BATCH_SIZE", 15),
		TokenBudget:  getEnvAsInt("TOKEN_BUDGET", 120000),

		RegionPasses:          getEnvAsInt("REGION_PASSES", 3),
		RegionMaxAxisPx:       getEnvAsInt("REGION_MAX_AXIS_PX", 200),
		RegionMergeDistancePx: getEnvAsInt("REGION_MERGE_DISTANCE_PX", 100),

		DedupeClusterDistancePx:  getEnvAsFloat("DEDUPE_CLUSTER_DISTANCE_PX", 150),
		DedupeColinearToleranceP: getEnvAsFloat("DEDUPE_COLINEAR_TOLERANCE_PX", 20),
		DedupeDistinctDistancePx: getEnvAsFloat("DEDUPE_DISTINCT_DISTANCE_PX", 400),
		DedupeModerateDistancePx: getEnvAsFloat("DEDUPE_MODERATE_DISTANCE_PX", 200),
		DedupeMaxInstancesPerRef: getEnvAsInt("DEDUPE_MAX_INSTANCES_PER_REF", 2),
		DedupeMinAmbiguousConf:   getEnvAsFloat("DEDUPE_MIN_AMBIGUOUS_CONFIDENCE", 0.4),

		EnsembleMergeDistancePx: getEnvAsFloat("ENSEMBLE_MERGE_DISTANCE_PX", 150),
		EnsembleConfidenceFloor: getEnvAsFloat("ENSEMBLE_CONFIDENCE_FLOOR", 0.3),

		ScorerDistinctDistancePx: getEnvAsFloat("SCORER_DISTINCT_DISTANCE_PX", 400),
		ReviewThreshold:          getEnvAsFloat("REVIEW_THRESHOLD", 0.5),
	}
}

// ProviderConfig maps onto the vision model backend selection.
func (c *Config) ProviderConfig() vision.ProviderConfig {
	return vision.ProviderConfig{
		Provider: c.VisionProvider,
		Model:    c.VisionModel,
	}
}

// BatcherConfig maps onto the crop batcher.
func (c *Config) BatcherConfig() vision.BatcherConfig {
	return vision.BatcherConfig{
		MaxBatchSize: c.MaxBatchSize,
		TokenBudget:  c.TokenBudget,
		PaddingPx:    c.CropPaddingPx,
	}
}

// ValidatorConfig maps onto the vision validator.
func (c *Config) ValidatorConfig() vision.ValidatorConfig {
	return vision.ValidatorConfig{
		ConfidenceThreshold: c.ConfidenceThreshold,
		ItemRetries:         c.ItemRetries,
		CallTimeout:         c.LLMCallTimeout,
		CallAttempts:        c.LLMCallAttempts,
	}
}

// ProposerConfig maps onto the region proposer.
func (c *Config) ProposerConfig() vision.ProposerConfig {
	return vision.ProposerConfig{
		Passes:          c.RegionPasses,
		MaxRegionAxisPx: c.RegionMaxAxisPx,
		MergeDistancePx: c.RegionMergeDistancePx,
		CallTimeout:     c.LLMCallTimeout,
		CallAttempts:    c.LLMCallAttempts,
	}
}

// DedupeConfig maps onto the deduplicator.
func (c *Config) DedupeConfig() callout.DedupeConfig {
	return callout.DedupeConfig{
		ClusterDistancePx:      c.DedupeClusterDistancePx,
		ColinearTolerancePx:    c.DedupeColinearToleranceP,
		DistinctDistancePx:     c.DedupeDistinctDistancePx,
		ModerateDistancePx:     c.DedupeModerateDistancePx,
		MaxInstancesPerRef:     c.DedupeMaxInstancesPerRef,
		MinAmbiguousConfidence: c.DedupeMinAmbiguousConf,
	}
}

// ScorerConfig maps onto the confidence scorer.
func (c *Config) ScorerConfig() callout.ScorerConfig {
	return callout.ScorerConfig{
		DistinctDistancePx: c.ScorerDistinctDistancePx,
	}
}

// EnsembleConfig maps onto the ensemble merge.
func (c *Config) EnsembleConfig() pipeline.EnsembleConfig {
	return pipeline.EnsembleConfig{
		MergeDistancePx: c.EnsembleMergeDistancePx,
		ConfidenceFloor: c.EnsembleConfidenceFloor,
	}
}

// PipelineConfig maps onto the shared finalize stage.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		ReviewThreshold: c.ReviewThreshold,
	}
}

// StrategyOptions maps onto strategy assembly.
func (c *Config) StrategyOptions() pipeline.StrategyOptions {
	return pipeline.StrategyOptions{
		CropPaddingPx: c.CropPaddingPx,
		Ensemble:      c.EnsembleConfig(),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
