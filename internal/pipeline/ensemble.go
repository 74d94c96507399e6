package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
)

// EnsembleConfig tunes the two-strategy merge.
type EnsembleConfig struct {
	// MergeDistancePx: detections of the same reference within this distance
	// from the two strategies describe the same symbol.
	MergeDistancePx float64

	// ConfidenceFloor drops merged detections whose upstream confidence
	// falls below it.
	ConfidenceFloor float64
}

// DefaultEnsembleConfig returns the reference tuning.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		MergeDistancePx: 150,
		ConfidenceFloor: 0.3,
	}
}

// Ensemble runs two strategies in parallel and merges their callout lists by
// reference identity and spatial proximity. Agreement between independent
// strategies is the strongest signal the pipeline has.
type Ensemble struct {
	primary   Strategy
	secondary Strategy
	cfg       EnsembleConfig
	log       *logrus.Entry
}

// NewEnsemble assembles the strategy pair, filling zero config fields with
// defaults.
func NewEnsemble(primary, secondary Strategy, cfg EnsembleConfig, log *logrus.Entry) *Ensemble {
	def := DefaultEnsembleConfig()
	if cfg.MergeDistancePx <= 0 {
		cfg.MergeDistancePx = def.MergeDistancePx
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ensemble{primary: primary, secondary: secondary, cfg: cfg, log: log}
}

func (s *Ensemble) Name() string {
	return fmt.Sprintf("ensemble(%s+%s)", s.primary.Name(), s.secondary.Name())
}

// Detect runs both strategies concurrently. One failed strategy degrades to
// the other's results alone; the invocation fails only when both do.
func (s *Ensemble) Detect(ctx context.Context, sheet *Sheet) (*Detection, error) {
	var (
		wg       sync.WaitGroup
		results  [2]*Detection
		failures [2]error
	)
	for i, strat := range []Strategy{s.primary, s.secondary} {
		wg.Add(1)
		go func(i int, strat Strategy) {
			defer wg.Done()
			results[i], failures[i] = strat.Detect(ctx, sheet)
		}(i, strat)
	}
	wg.Wait()

	if failures[0] != nil && failures[1] != nil {
		return nil, fmt.Errorf("both ensemble strategies failed: %v; %v", failures[0], failures[1])
	}
	for i, err := range failures {
		if err != nil {
			s.log.WithError(err).WithField("strategy", [2]Strategy{s.primary, s.secondary}[i].Name()).
				Warn("ensemble member failed, using the other strategy alone")
			results[i] = &Detection{}
		}
		if results[i] == nil {
			results[i] = &Detection{}
		}
	}

	merged := s.merge(results[0].Callouts, results[1].Callouts)

	floored := make([]callout.Callout, 0, len(merged))
	for _, c := range merged {
		if c.Confidence < s.cfg.ConfidenceFloor {
			continue
		}
		floored = append(floored, c)
	}

	return &Detection{
		Callouts:  floored,
		Unmatched: mergeUnmatched(results[0].Unmatched, results[1].Unmatched),
	}, nil
}

// merge pairs detections from the two strategies by (ref, proximity). A pair
// collapses to its higher-confidence member, tagged found-by-both; anything
// unpaired carries over as-is.
func (s *Ensemble) merge(primary, secondary []callout.Callout) []callout.Callout {
	merged := make([]callout.Callout, len(primary))
	copy(merged, primary)

	for _, c := range secondary {
		matched := false
		for i := range merged {
			if merged[i].Ref != c.Ref {
				continue
			}
			if callout.Distance(merged[i].Position, c.Position) > s.cfg.MergeDistancePx {
				continue
			}
			if c.Confidence > merged[i].Confidence {
				keep := c
				keep.FoundByBoth = true
				keep.Source = s.Name()
				merged[i] = keep
			} else {
				merged[i].FoundByBoth = true
				merged[i].Source = s.Name()
			}
			matched = true
			break
		}
		if !matched {
			merged = append(merged, c)
		}
	}
	return merged
}

func mergeUnmatched(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, ref := range list {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}
