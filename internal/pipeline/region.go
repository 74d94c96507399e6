package pipeline

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/ocr"
	"github.com/Woody88/sitelink-sub002/internal/vision"
)

// regionOCRPaddingPx widens a proposed region before OCR so text clipped by
// an approximate box is still readable.
const regionOCRPaddingPx = 20

// RegionOCR is the region-proposal strategy: the vision model proposes
// approximate regions directly from the full sheet, then OCR searches each
// region for the exact reference text to refine the position. No shape
// detector is involved.
type RegionOCR struct {
	proposer *vision.Proposer
	engine   ocr.Engine
	log      *logrus.Entry
}

// NewRegionOCR assembles the strategy.
func NewRegionOCR(proposer *vision.Proposer, engine ocr.Engine, log *logrus.Entry) *RegionOCR {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RegionOCR{proposer: proposer, engine: engine, log: log}
}

func (s *RegionOCR) Name() string { return "region" }

// Detect proposes regions and refines each with OCR. A region whose text OCR
// cannot confirm falls back to the model's own reading at the region center;
// a region with neither is dropped.
func (s *RegionOCR) Detect(ctx context.Context, sheet *Sheet) (*Detection, error) {
	regions := s.proposer.Propose(ctx, sheet.Page)
	if len(regions) == 0 {
		return &Detection{}, nil
	}

	callouts := make([]callout.Callout, 0, len(regions))
	unmatched := make([]string, 0)
	seen := make(map[string]bool)

	for _, region := range regions {
		raw, position, bounds, conf := s.refine(sheet, region)
		if raw == "" {
			continue
		}

		ref, target, fuzzy, ok := gateRef(raw, sheet.Context)
		if !ok {
			norm := callout.NormalizeRef(raw)
			if callout.IsValidRef(norm) && sheet.Context.HasRegistry() &&
				!sheet.Context.InRegistry(callout.TargetSheet(norm)) && !seen[norm] {
				seen[norm] = true
				unmatched = append(unmatched, norm)
			}
			continue
		}

		callouts = append(callouts, callout.Callout{
			Ref:          ref,
			TargetSheet:  target,
			Type:         callout.ClassifyRef(ref, callout.ShapeUnknown),
			Position:     position,
			Bounds:       bounds,
			Confidence:   conf,
			FuzzyMatched: fuzzy,
			Source:       s.Name(),
		})
	}

	return &Detection{Callouts: callouts, Unmatched: unmatched}, nil
}

// refine runs OCR inside a proposed region. When OCR confirms reference text
// the word box becomes the position; otherwise the model's reading and the
// region geometry stand.
func (s *RegionOCR) refine(sheet *Sheet, region vision.Region) (ref string, position callout.Point, bounds callout.Bounds, conf float64) {
	ref = region.Ref
	position = region.Bounds.Center()
	bounds = region.Bounds
	conf = region.Confidence

	rect := image.Rect(
		region.Bounds.X1-regionOCRPaddingPx,
		region.Bounds.Y1-regionOCRPaddingPx,
		region.Bounds.X2+regionOCRPaddingPx,
		region.Bounds.Y2+regionOCRPaddingPx,
	)
	words, err := s.engine.WordsInRegion(sheet.Page.Image, rect)
	if err != nil {
		s.log.WithError(err).WithField("region", rect).Warn("region OCR failed, keeping model reading")
		return ref, position, bounds, conf
	}

	if w, ok := bestRefWord(words); ok {
		ref = w.Text
		position = callout.Point{X: (w.X1 + w.X2) / 2, Y: (w.Y1 + w.Y2) / 2}
		bounds = callout.Bounds{X1: w.X1, Y1: w.Y1, X2: w.X2, Y2: w.Y2}
		if w.Confidence > conf {
			conf = w.Confidence
		}
	}
	return ref, position, bounds, conf
}

// bestRefWord finds the highest-confidence word (or adjacent word pair, for
// references OCR split at the slash) matching the reference grammar.
func bestRefWord(words []ocr.Word) (ocr.Word, bool) {
	var best ocr.Word
	found := false

	consider := func(w ocr.Word) {
		if !callout.IsValidRef(w.Text) {
			return
		}
		if !found || w.Confidence > best.Confidence {
			best = w
			best.Text = callout.NormalizeRef(w.Text)
			found = true
		}
	}

	for i, w := range words {
		consider(w)
		if i+1 < len(words) {
			consider(joinWords(w, words[i+1]))
		}
	}
	return best, found
}

// joinWords fuses two horizontally adjacent words into one candidate,
// covering references OCR split around the slash ("2/" + "A5").
func joinWords(a, b ocr.Word) ocr.Word {
	text := a.Text + b.Text
	if !containsSlash(a.Text) && !containsSlash(b.Text) {
		text = a.Text + "/" + b.Text
	}
	conf := a.Confidence
	if b.Confidence < conf {
		conf = b.Confidence
	}
	return ocr.Word{
		Text:       text,
		Confidence: conf,
		X1:         minInt(a.X1, b.X1),
		Y1:         minInt(a.Y1, b.Y1),
		X2:         maxInt(a.X2, b.X2),
		Y2:         maxInt(a.Y2, b.Y2),
	}
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}

// gateRef applies the shared policy gate (format, self-reference, registry
// with fuzzy correction) to a reference that did not pass through the vision
// validator's own filters.
func gateRef(raw string, sheet callout.SheetContext) (ref, target string, fuzzy, ok bool) {
	ref = callout.NormalizeRef(raw)
	if ref == "" {
		return "", "", false, false
	}
	if !callout.IsValidRef(ref) && !callout.LooksLikeSheetToken(ref) {
		return "", "", false, false
	}
	if callout.IsSelfReference(ref, sheet.CurrentSheet) {
		return "", "", false, false
	}
	target = callout.TargetSheet(ref)
	if !sheet.InRegistry(target) {
		corrected, matched := sheet.FuzzyMatchSheet(target)
		if !matched {
			return "", "", false, false
		}
		target = corrected
		fuzzy = true
	}
	return ref, target, fuzzy, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
