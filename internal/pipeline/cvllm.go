package pipeline

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/detect"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// defaultCropPaddingPx is the context margin cropped around a candidate so
// the validator sees the symbol together with its immediate surroundings.
const defaultCropPaddingPx = 40

// CVLLM is the shape-detector-first strategy: geometric detection proposes
// candidates, the vision model labels them. Best precision, but recall is
// bounded by the shape detector.
type CVLLM struct {
	detector  *detect.Detector
	validator *vision.Validator
	padding   int
	log       *logrus.Entry
}

// NewCVLLM assembles the strategy. A padding of 0 uses the default.
func NewCVLLM(detector *detect.Detector, validator *vision.Validator, paddingPx int, log *logrus.Entry) *CVLLM {
	if paddingPx <= 0 {
		paddingPx = defaultCropPaddingPx
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CVLLM{detector: detector, validator: validator, padding: paddingPx, log: log}
}

func (s *CVLLM) Name() string { return "cv-llm" }

// Detect finds candidate shapes, crops them, and has the vision model decide
// which are callouts. Shape detection failure is not fatal: the strategy
// returns whatever the surviving techniques produced, possibly nothing.
func (s *CVLLM) Detect(ctx context.Context, sheet *Sheet) (*Detection, error) {
	shapes, err := s.detector.Detect(sheet.Page)
	if err != nil {
		s.log.WithError(err).Warn("shape detection failed, continuing with partial results")
	}
	if len(shapes) == 0 {
		return &Detection{}, nil
	}

	inputs := make([]callout.ValidationInput, 0, len(shapes))
	for i, sh := range shapes {
		rect := image.Rect(sh.Bounds.X1, sh.Bounds.Y1, sh.Bounds.X2, sh.Bounds.Y2)
		crop, err := imaging.CropPadded(sheet.Page.Image, rect, s.padding)
		if err != nil {
			s.log.WithError(err).WithField("candidate", i).Warn("skipping uncroppable candidate")
			continue
		}
		inputs = append(inputs, callout.ValidationInput{
			Index:       i,
			ImageBase64: crop.ImageBase64,
			ShapeHint:   sh.Type,
			Bounds:      sh.Bounds,
			Center:      sh.Center,
		})
	}

	results := s.validator.Validate(ctx, inputs, sheet.Context)

	callouts := make([]callout.Callout, 0, len(results))
	for _, r := range results {
		if !r.IsCallout {
			continue
		}
		sh := shapes[r.Index]
		typ := r.Type
		if typ == callout.TypeUnknown || typ == "" {
			typ = callout.ClassifyRef(r.DetectedRef, sh.Type)
		}
		if typ == callout.TypeUnknown && sh.ColoredInk {
			// Colored ink on otherwise monochrome linework marks revisions.
			typ = callout.TypeRevision
		}
		callouts = append(callouts, callout.Callout{
			Ref:          r.DetectedRef,
			TargetSheet:  r.TargetSheet,
			Type:         typ,
			Position:     sh.Center,
			Bounds:       sh.Bounds,
			Confidence:   r.Confidence,
			FuzzyMatched: r.FuzzyMatched,
			Source:       s.Name(),
		})
	}

	return &Detection{
		Callouts:  callouts,
		Unmatched: unmatchedRefs(results, sheet.Context),
	}, nil
}
