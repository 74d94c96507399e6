// Package pipeline composes shape detection, OCR, crop batching and vision
// validation into named detection strategies, and finalizes every strategy's
// output through one shared dedupe/score/normalize stage so callers are
// strategy-agnostic.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
)

// Sheet is one detection invocation's input: a decoded page and the
// caller-supplied context. Nothing about a Sheet outlives the invocation.
type Sheet struct {
	Page    *imaging.Page
	Context callout.SheetContext
}

// Detection is a strategy's raw output before the shared finalize stage.
type Detection struct {
	// Callouts are validated candidates carrying upstream confidence.
	Callouts []callout.Callout

	// Unmatched are references read on the sheet whose target sheet missed
	// the registry; surfaced for manual review, never silently dropped.
	Unmatched []string
}

// Strategy is one way of turning a sheet into candidate callouts. All
// strategies degrade internally (a failed signal source means fewer
// candidates); a returned error is reserved for unusable input.
type Strategy interface {
	Name() string
	Detect(ctx context.Context, sheet *Sheet) (*Detection, error)
}

// Config tunes the shared finalize stage.
type Config struct {
	// ReviewThreshold is the composite confidence below which a callout's
	// reference lands on the needs-manual-review list.
	ReviewThreshold float64

	// HighConfidence and LowConfidence bound the stats buckets.
	HighConfidence float64
	LowConfidence  float64
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		ReviewThreshold: 0.5,
		HighConfidence:  0.8,
		LowConfidence:   0.5,
	}
}

// Pipeline runs one strategy and finalizes its output.
type Pipeline struct {
	strategy Strategy
	deduper  *callout.Deduplicator
	scorer   *callout.Scorer
	cfg      Config
	log      *logrus.Entry
}

// New assembles a pipeline around a strategy, filling zero config fields
// with defaults.
func New(strategy Strategy, deduper *callout.Deduplicator, scorer *callout.Scorer, cfg Config, log *logrus.Entry) *Pipeline {
	def := DefaultConfig()
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = def.ReviewThreshold
	}
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = def.HighConfidence
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = def.LowConfidence
	}
	if deduper == nil {
		deduper = callout.NewDeduplicator(callout.DefaultDedupeConfig())
	}
	if scorer == nil {
		scorer = callout.NewScorer(callout.DefaultScorerConfig())
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{strategy: strategy, deduper: deduper, scorer: scorer, cfg: cfg, log: log}
}

// Analyze runs the full detection pipeline for one sheet.
//
// Only unusable input produces a failed result; every downstream problem
// (shape detection failure, a bad crop, a failed model call) degrades to
// fewer or lower-confidence callouts. The normal "nothing found" case is
// success with zero callouts.
func (p *Pipeline) Analyze(ctx context.Context, sheet *Sheet) *callout.AnalysisResult {
	start := time.Now()

	if sheet == nil || sheet.Page == nil || sheet.Page.Image == nil {
		return failure(sheet, "no decoded page image supplied", start)
	}

	log := p.log.WithFields(logrus.Fields{
		"invocation": uuid.NewString(),
		"strategy":   p.strategy.Name(),
		"sheet":      sheet.Context.CurrentSheet,
	})
	log.Info("starting callout detection")

	det, err := p.strategy.Detect(ctx, sheet)
	if err != nil {
		log.WithError(err).Error("detection failed")
		return failure(sheet, err.Error(), start)
	}
	if det == nil {
		det = &Detection{}
	}

	result := p.finalize(det, sheet, start)
	log.WithFields(logrus.Fields{
		"found":    result.CalloutsFound,
		"matched":  result.CalloutsMatched,
		"duration": result.ProcessingTimeMs,
	}).Info("callout detection complete")
	return result
}

// finalize is the shared terminal stage: dedupe, score, bounds-check,
// normalize, stats. Every strategy's output passes through here so results
// from different strategies are comparable.
func (p *Pipeline) finalize(det *Detection, sheet *Sheet, start time.Time) *callout.AnalysisResult {
	w, h := sheet.Page.Width, sheet.Page.Height

	deduped := p.deduper.Dedupe(det.Callouts, w, h)

	kept := make([]callout.Callout, 0, len(deduped))
	for _, c := range deduped {
		if !callout.InBounds(c.Position, w, h) {
			p.log.WithFields(logrus.Fields{
				"ref":      c.Ref,
				"position": fmt.Sprintf("%d,%d", c.Position.X, c.Position.Y),
			}).Warn("dropping out-of-bounds detection")
			continue
		}
		c.Confidence = p.scorer.Score(c, w, h, sheet.Context, deduped)
		kept = append(kept, c)
	}

	hyperlinks := make([]callout.Hyperlink, 0, len(kept))
	matched := 0
	for _, c := range kept {
		if sheet.Context.InRegistry(c.TargetSheet) {
			matched++
		}
		n := callout.Normalize(c.Position, w, h)
		hyperlinks = append(hyperlinks, callout.Hyperlink{
			CalloutRef:     c.Ref,
			TargetSheetRef: c.TargetSheet,
			X:              n.X,
			Y:              n.Y,
			W:              callout.NormalizeSpan(c.Bounds.Width(), w),
			H:              callout.NormalizeSpan(c.Bounds.Height(), h),
			PixelX:         c.Position.X,
			PixelY:         c.Position.Y,
			Confidence:     c.Confidence,
		})
	}

	return &callout.AnalysisResult{
		Success:          true,
		SheetNumber:      sheet.Context.CurrentSheet,
		CalloutsFound:    len(kept),
		CalloutsMatched:  matched,
		Hyperlinks:       hyperlinks,
		Callouts:         kept,
		UnmatchedRefs:    det.Unmatched,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Stats:            p.stats(kept),
	}
}

// stats summarizes the score distribution for one sheet.
func (p *Pipeline) stats(callouts []callout.Callout) *callout.ConfidenceStats {
	if len(callouts) == 0 {
		return nil
	}
	s := &callout.ConfidenceStats{
		NeedsManualReview: make([]string, 0),
	}
	sum := 0.0
	for _, c := range callouts {
		sum += c.Confidence
		if c.Confidence >= p.cfg.HighConfidence {
			s.HighConfidence++
		}
		if c.Confidence < p.cfg.LowConfidence {
			s.LowConfidence++
		}
		if c.Confidence < p.cfg.ReviewThreshold {
			s.NeedsManualReview = append(s.NeedsManualReview, c.Ref)
		}
	}
	s.AverageConfidence = sum / float64(len(callouts))
	return s
}

func failure(sheet *Sheet, msg string, start time.Time) *callout.AnalysisResult {
	r := &callout.AnalysisResult{
		Success:          false,
		Hyperlinks:       make([]callout.Hyperlink, 0),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Error:            msg,
	}
	if sheet != nil {
		r.SheetNumber = sheet.Context.CurrentSheet
	}
	return r
}

// unmatchedRefs extracts references the validator rejected solely because
// their target sheet missed the registry: they were read on the sheet and
// belong on the manual-review list.
func unmatchedRefs(results []callout.ValidationResult, sheet callout.SheetContext) []string {
	if !sheet.HasRegistry() {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, r := range results {
		if r.IsCallout || r.DetectedRef == "" {
			continue
		}
		ref := callout.NormalizeRef(r.DetectedRef)
		if !callout.IsValidRef(ref) {
			continue
		}
		if sheet.InRegistry(callout.TargetSheet(ref)) {
			continue
		}
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	}
	return out
}
