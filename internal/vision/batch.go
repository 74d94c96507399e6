package vision

import (
	"github.com/Woody88/sitelink-sub002/internal/callout"
)

// BatcherConfig tunes crop batching against the model's context window.
type BatcherConfig struct {
	// MaxBatchSize is the largest number of crops sent in one request.
	MaxBatchSize int

	// TokenBudget is the estimated-token ceiling for a single request.
	TokenBudget int

	// PaddingPx is the padding applied around candidate boxes before
	// cropping; it participates in the per-image token estimate.
	PaddingPx int
}

// DefaultBatcherConfig returns the reference tuning.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize: 15,
		TokenBudget:  120000,
		PaddingPx:    40,
	}
}

// Token-estimate constants. An encoded image costs roughly proportional to
// its pixel area plus a fixed encoding overhead; candidates with no known
// box get a flat base estimate.
const (
	tokensPerKiloPixel = 0.15
	encodingOverhead   = 200
	baseImageEstimate  = 1200
	promptOverhead     = 1500
)

// Batcher groups validation inputs into token-budget-bounded batches.
type Batcher struct {
	cfg BatcherConfig
}

// NewBatcher creates a batcher, filling zero config fields with defaults.
func NewBatcher(cfg BatcherConfig) *Batcher {
	def := DefaultBatcherConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = def.TokenBudget
	}
	if cfg.PaddingPx <= 0 {
		cfg.PaddingPx = def.PaddingPx
	}
	return &Batcher{cfg: cfg}
}

// EstimateTokens returns the token cost estimate for one candidate image.
func (b *Batcher) EstimateTokens(in callout.ValidationInput) int {
	w := in.Bounds.Width()
	h := in.Bounds.Height()
	if w <= 0 || h <= 0 {
		return baseImageEstimate
	}
	paddedArea := float64((w + 2*b.cfg.PaddingPx) * (h + 2*b.cfg.PaddingPx))
	return int(paddedArea/1000.0*tokensPerKiloPixel) + encodingOverhead
}

// Batches splits candidates into consecutive chunks whose estimated cost
// stays under the token budget.
//
// The batch size starts at the configured maximum and only shrinks (never
// grows) until the most expensive chunk fits, then the input is split in
// original order with each item keeping its original global index.
func (b *Batcher) Batches(inputs []callout.ValidationInput) [][]callout.ValidationInput {
	if len(inputs) == 0 {
		return nil
	}

	size := b.cfg.MaxBatchSize
	for size > 1 && b.costliestChunk(inputs, size) > b.cfg.TokenBudget {
		size--
	}

	batches := make([][]callout.ValidationInput, 0, (len(inputs)+size-1)/size)
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		batches = append(batches, inputs[start:end])
	}
	return batches
}

// costliestChunk returns the highest estimated token total over consecutive
// chunks of the given size.
func (b *Batcher) costliestChunk(inputs []callout.ValidationInput, size int) int {
	worst := 0
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		total := promptOverhead
		for _, in := range inputs[start:end] {
			total += b.EstimateTokens(in)
		}
		if total > worst {
			worst = total
		}
	}
	return worst
}
