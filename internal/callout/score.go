package callout

import "math"

// ScorerConfig tunes the composite confidence scorer.
type ScorerConfig struct {
	// DistinctDistancePx is the separation beyond which a same-ref
	// detection counts as a legitimate duplicate rather than noise.
	DistinctDistancePx float64
}

// DefaultScorerConfig returns the reference tuning.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{DistinctDistancePx: 400}
}

// Scorer combines registry validity, format validity, bounds validity,
// duplicate context and upstream confidence into one composite score.
//
// The scorer is applied uniformly regardless of which detection strategy
// produced a candidate, so results from different strategies are comparable.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a scorer with the given tuning.
func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.DistinctDistancePx <= 0 {
		cfg.DistinctDistancePx = 400
	}
	return &Scorer{cfg: cfg}
}

// Score computes the composite confidence for one callout.
//
// Starting from a base of 0.5 the score is adjusted additively:
//   - +0.3 target sheet is registry-valid; -0.2 registry is non-empty and
//     the target is not a member
//   - +0.2 reference matches the grammar; -0.1 it does not
//   - +0.2 position lies within image bounds; -0.3 out of bounds
//   - +0.1 a same-ref detection exists at a clearly different position
//   - +0.1 the semantic type is known
//   - +0.1 x upstream confidence already attached to the callout
//
// The result is clamped to [0,1].
func (s *Scorer) Score(c Callout, width, height int, ctx SheetContext, all []Callout) float64 {
	score := 0.5

	if ctx.HasRegistry() {
		if ctx.InRegistry(c.TargetSheet) {
			score += 0.3
		} else {
			score -= 0.2
		}
	} else if c.TargetSheet != "" {
		score += 0.3
	}

	if IsValidRef(c.Ref) || (c.TargetSheet != "" && LooksLikeSheetToken(c.Ref)) {
		score += 0.2
	} else {
		score -= 0.1
	}

	if InBounds(c.Position, width, height) {
		score += 0.2
	} else {
		score -= 0.3
	}

	if s.hasDistantTwin(c, all) {
		score += 0.1
	}

	if c.Type != TypeUnknown && c.Type != "" {
		score += 0.1
	}

	score += 0.1 * clamp01(c.Confidence)

	return clamp01(score)
}

// hasDistantTwin reports whether another detection of the same reference
// exists far enough away to support the legitimacy of a duplicate.
func (s *Scorer) hasDistantTwin(c Callout, all []Callout) bool {
	for _, other := range all {
		if other.Ref != c.Ref {
			continue
		}
		if Distance(c.Position, other.Position) > s.cfg.DistinctDistancePx {
			return true
		}
	}
	return false
}

// Distance returns the Euclidean distance between two pixel points.
func Distance(a, b Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
