package pipeline

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
	"github.com/Woody88/sitelink-sub002/internal/ocr"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// OCRLLM is the text-first strategy: OCR scans the whole page for words
// matching the reference grammar, then the vision model validates a crop
// around each hit. Final positions always come from OCR, which localizes
// text far more precisely than the model does.
type OCRLLM struct {
	engine    ocr.Engine
	validator *vision.Validator
	padding   int
	log       *logrus.Entry
}

// NewOCRLLM assembles the strategy. A padding of 0 uses the default.
func NewOCRLLM(engine ocr.Engine, validator *vision.Validator, paddingPx int, log *logrus.Entry) *OCRLLM {
	if paddingPx <= 0 {
		paddingPx = defaultCropPaddingPx
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OCRLLM{engine: engine, validator: validator, padding: paddingPx, log: log}
}

func (s *OCRLLM) Name() string { return "ocr-llm" }

// Detect scans the page with OCR and validates every grammar-matching word.
// An OCR failure degrades to an empty result; this strategy has no other
// signal source.
func (s *OCRLLM) Detect(ctx context.Context, sheet *Sheet) (*Detection, error) {
	words, err := s.engine.Words(sheet.Page.Image)
	if err != nil {
		s.log.WithError(err).Warn("page OCR failed, no text candidates available")
		return &Detection{}, nil
	}

	candidates := make([]ocr.Word, 0)
	for _, w := range words {
		if callout.IsValidRef(w.Text) {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return &Detection{}, nil
	}

	inputs := make([]callout.ValidationInput, 0, len(candidates))
	for i, w := range candidates {
		rect := image.Rect(w.X1, w.Y1, w.X2, w.Y2)
		crop, err := imaging.CropPadded(sheet.Page.Image, rect, s.padding)
		if err != nil {
			s.log.WithError(err).WithField("text", w.Text).Warn("skipping uncroppable candidate")
			continue
		}
		inputs = append(inputs, callout.ValidationInput{
			Index:        i,
			ImageBase64:  crop.ImageBase64,
			CandidateRef: callout.NormalizeRef(w.Text),
			Bounds:       callout.Bounds{X1: w.X1, Y1: w.Y1, X2: w.X2, Y2: w.Y2},
			Center:       callout.Point{X: (w.X1 + w.X2) / 2, Y: (w.Y1 + w.Y2) / 2},
		})
	}

	results := s.validator.Validate(ctx, inputs, sheet.Context)

	callouts := make([]callout.Callout, 0, len(results))
	for _, r := range results {
		if !r.IsCallout {
			continue
		}
		w := candidates[r.Index]
		ref := r.DetectedRef
		if ref == "" {
			ref = callout.NormalizeRef(w.Text)
		}
		typ := r.Type
		if typ == callout.TypeUnknown || typ == "" {
			typ = callout.ClassifyRef(ref, callout.ShapeUnknown)
		}
		callouts = append(callouts, callout.Callout{
			Ref:          ref,
			TargetSheet:  r.TargetSheet,
			Type:         typ,
			Position:     callout.Point{X: (w.X1 + w.X2) / 2, Y: (w.Y1 + w.Y2) / 2},
			Bounds:       callout.Bounds{X1: w.X1, Y1: w.Y1, X2: w.X2, Y2: w.Y2},
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
