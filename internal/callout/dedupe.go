package callout

import (
	"math"
	"sort"
)

// DedupeConfig tunes the near-duplicate collapse policy.
//
// Strategies historically shipped with divergent constants (100px for the
// CV strategy, 200px for region proposals), so every distance is a tunable
// rather than a hard-coded value.
type DedupeConfig struct {
	// ClusterDistancePx: two detections of the same reference within this
	// distance are the same physical symbol.
	ClusterDistancePx float64

	// ColinearTolerancePx: detections sharing a rounded x or y coordinate
	// within this tolerance count as co-linear (scale bars, repeated
	// fractions along a dimension string).
	ColinearTolerancePx float64

	// DistinctDistancePx: separation beyond which two surviving detections
	// are clearly distinct physical instances.
	DistinctDistancePx float64

	// ModerateDistancePx: lower bound of the ambiguous separation band in
	// which quadrant and confidence checks decide.
	ModerateDistancePx float64

	// MaxInstancesPerRef is the heuristic ceiling on how many physical
	// instances of one reference a sheet plausibly carries.
	MaxInstancesPerRef int

	// MinAmbiguousConfidence is the confidence both members of a
	// moderately-separated pair must exceed to survive.
	MinAmbiguousConfidence float64
}

// DefaultDedupeConfig returns the reference tuning.
func DefaultDedupeConfig() DedupeConfig {
	return DedupeConfig{
		ClusterDistancePx:      150,
		ColinearTolerancePx:    20,
		DistinctDistancePx:     400,
		ModerateDistancePx:     200,
		MaxInstancesPerRef:     2,
		MinAmbiguousConfidence: 0.4,
	}
}

// Deduplicator collapses near-duplicate detections of the same reference
// while preserving legitimately repeated references at different locations.
//
// The policy deliberately favors precision over recall for ambiguous
// clusters: a reference repeated at two corners of a sheet survives, a
// reference echoed along a scale bar does not.
type Deduplicator struct {
	cfg DedupeConfig
}

// NewDeduplicator creates a deduplicator, filling zero config fields with
// the reference defaults.
func NewDeduplicator(cfg DedupeConfig) *Deduplicator {
	def := DefaultDedupeConfig()
	if cfg.ClusterDistancePx <= 0 {
		cfg.ClusterDistancePx = def.ClusterDistancePx
	}
	if cfg.ColinearTolerancePx <= 0 {
		cfg.ColinearTolerancePx = def.ColinearTolerancePx
	}
	if cfg.DistinctDistancePx <= 0 {
		cfg.DistinctDistancePx = def.DistinctDistancePx
	}
	if cfg.ModerateDistancePx <= 0 {
		cfg.ModerateDistancePx = def.ModerateDistancePx
	}
	if cfg.MaxInstancesPerRef <= 0 {
		cfg.MaxInstancesPerRef = def.MaxInstancesPerRef
	}
	if cfg.MinAmbiguousConfidence <= 0 {
		cfg.MinAmbiguousConfidence = def.MinAmbiguousConfidence
	}
	return &Deduplicator{cfg: cfg}
}

// Dedupe collapses duplicates within one sheet's detections. The operation
// is idempotent: Dedupe(Dedupe(x)) == Dedupe(x).
func (d *Deduplicator) Dedupe(callouts []Callout, imageWidth, imageHeight int) []Callout {
	if len(callouts) <= 1 {
		return callouts
	}

	// Group by normalized reference, preserving first-seen order of refs so
	// output ordering is stable across runs.
	order := make([]string, 0)
	groups := make(map[string][]Callout)
	for _, c := range callouts {
		ref := NormalizeRef(c.Ref)
		if _, seen := groups[ref]; !seen {
			order = append(order, ref)
		}
		groups[ref] = append(groups[ref], c)
	}

	out := make([]Callout, 0, len(callouts))
	for _, ref := range order {
		group := groups[ref]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		survivors := d.clusterGroup(group)
		if len(survivors) > d.cfg.MaxInstancesPerRef {
			survivors = d.disambiguate(survivors, imageWidth, imageHeight)
		}
		out = append(out, survivors...)
	}
	return out
}

// clusterGroup collapses same-symbol detections: members within the cluster
// distance of a cluster's seed belong to that cluster, and only the
// highest-confidence member of each cluster survives.
func (d *Deduplicator) clusterGroup(group []Callout) []Callout {
	// Seed clusters from the most confident detections so the winner of a
	// cluster does not depend on input order.
	sorted := make([]Callout, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	winners := make([]Callout, 0, len(sorted))
	for _, c := range sorted {
		merged := false
		for i := range winners {
			if Distance(c.Position, winners[i].Position) <= d.cfg.ClusterDistancePx {
				merged = true
				break
			}
		}
		if !merged {
			winners = append(winners, c)
		}
	}
	return winners
}

// disambiguate handles groups where more instances survive clustering than a
// sheet plausibly carries.
func (d *Deduplicator) disambiguate(survivors []Callout, imageWidth, imageHeight int) []Callout {
	best := survivors[0] // clusterGroup emits highest confidence first

	if d.colinearCount(survivors) >= 3 {
		// A row of identical refs at the same x or y is a scale bar or a
		// repeated fraction, not three callouts.
		return []Callout{best}
	}

	a, b, sep := farthestPair(survivors)
	switch {
	case sep > d.cfg.DistinctDistancePx:
		return []Callout{a, b}
	case sep >= d.cfg.ModerateDistancePx:
		if quadrant(a.Position, imageWidth, imageHeight) != quadrant(b.Position, imageWidth, imageHeight) &&
			a.Confidence > d.cfg.MinAmbiguousConfidence && b.Confidence > d.cfg.MinAmbiguousConfidence {
			return []Callout{a, b}
		}
		return []Callout{best}
	default:
		return []Callout{best}
	}
}

// colinearCount returns the size of the largest set of detections sharing a
// rounded x or y coordinate within the co-linear tolerance.
func (d *Deduplicator) colinearCount(group []Callout) int {
	tol := d.cfg.ColinearTolerancePx
	most := 0
	for _, anchor := range group {
		sameX, sameY := 0, 0
		for _, other := range group {
			if math.Abs(float64(other.Position.X-anchor.Position.X)) <= tol {
				sameX++
			}
			if math.Abs(float64(other.Position.Y-anchor.Position.Y)) <= tol {
				sameY++
			}
		}
		if sameX > most {
			most = sameX
		}
		if sameY > most {
			most = sameY
		}
	}
	return most
}

// farthestPair returns the two mutually-farthest detections and their
// separation, preferring higher confidence on ties.
func farthestPair(group []Callout) (Callout, Callout, float64) {
	var a, b Callout
	maxSep := -1.0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sep := Distance(group[i].Position, group[j].Position)
			if sep > maxSep {
				maxSep = sep
				a, b = group[i], group[j]
			}
		}
	}
	if b.Confidence > a.Confidence {
		a, b = b, a
	}
	return a, b, maxSep
}

// quadrant maps a point to one of the four image quadrants.
func quadrant(p Point, width, height int) int {
	q := 0
	if p.X >= width/2 {
		q |= 1
	}
	if p.Y >= height/2 {
		q |= 2
	}
	return q
}
