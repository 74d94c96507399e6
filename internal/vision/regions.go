package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
)

// Region is an approximate bounding region proposed by the model directly
// from the full sheet image, before OCR refinement.
type Region struct {
	Bounds     callout.Bounds
	Ref        string  // Reference the model believes it saw, may be empty
	Confidence float64 // Pass-discounted model confidence
}

// ProposerConfig tunes region proposal.
type ProposerConfig struct {
	// Passes is how many independent full-image passes run (2-3); later
	// passes use broader framing prompts and carry a confidence discount.
	Passes int

	// MaxRegionAxisPx rejects proposals whose major axis exceeds this
	// ceiling; anything that large is a text label, not a symbol.
	MaxRegionAxisPx int

	// MergeDistancePx merges proposals from different passes whose centers
	// fall within this distance.
	MergeDistancePx int

	// CallTimeout bounds a single model call.
	CallTimeout time.Duration

	// CallAttempts is the number of attempts per pass, with exponential
	// backoff between them.
	CallAttempts int
}

// DefaultProposerConfig returns the reference tuning.
func DefaultProposerConfig() ProposerConfig {
	return ProposerConfig{
		Passes:          3,
		MaxRegionAxisPx: 200,
		MergeDistancePx: 100,
		CallTimeout:     60 * time.Second,
		CallAttempts:    3,
	}
}

// passDiscounts weight later passes below the first, reflecting their lower
// prompt specificity.
var passDiscounts = []float64{1.0, 0.9, 0.85}

// framingPrompts vary how each pass frames the task; independent framings
// surface symbols a single prompt misses.
var framingPrompts = []string{
	"Locate every callout symbol: small circles, hexagons or flagged circles containing a detail/sheet reference like \"2/A5\".",
	"Scan the sheet edge to edge, including title block margins and detail enlargements, for cross-reference bubbles pointing at other sheets.",
	"Find any small symbol that tells the reader to look at another sheet, including section cut markers and elevation tags.",
}

// Proposer asks the model for approximate callout regions from the full
// sheet image.
type Proposer struct {
	model llms.Model
	cfg   ProposerConfig
	log   *logrus.Entry
}

// NewProposer constructs a region proposer around an injected model client.
func NewProposer(model llms.Model, cfg ProposerConfig, log *logrus.Entry) *Proposer {
	def := DefaultProposerConfig()
	if cfg.Passes <= 0 || cfg.Passes > len(framingPrompts) {
		cfg.Passes = def.Passes
	}
	if cfg.MaxRegionAxisPx <= 0 {
		cfg.MaxRegionAxisPx = def.MaxRegionAxisPx
	}
	if cfg.MergeDistancePx <= 0 {
		cfg.MergeDistancePx = def.MergeDistancePx
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.CallAttempts <= 0 {
		cfg.CallAttempts = def.CallAttempts
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Proposer{model: model, cfg: cfg, log: log}
}

// Propose runs the configured passes and merges their proposals.
//
// A failed pass is logged and skipped; the merge works with whatever passes
// succeeded, and zero successful passes simply yields no regions.
func (p *Proposer) Propose(ctx context.Context, page *imaging.Page) []Region {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		p.log.WithError(err).Error("failed to encode sheet for region proposal")
		return nil
	}
	imageBytes := buf.Bytes()

	all := make([]Region, 0)
	for pass := 0; pass < p.cfg.Passes; pass++ {
		regions, err := p.runPass(ctx, imageBytes, page, pass)
		if err != nil {
			p.log.WithError(err).WithField("pass", pass).Warn("region proposal pass failed")
			continue
		}
		all = append(all, regions...)
	}
	return p.merge(all)
}

func (p *Proposer) runPass(ctx context.Context, imageBytes []byte, page *imaging.Page, pass int) ([]Region, error) {
	prompt := fmt.Sprintf(`%s

The image is %d x %d pixels. Respond with ONLY a JSON object:

{"regions":[{"x":1200,"y":840,"w":60,"h":60,"ref":"2/A5","confidence":0.9}]}

x,y is the top-left corner of a tight box around the symbol in pixels; w,h
its size. ref is the reference text if legible, else "". confidence is 0-1.
Do not report dimension text, scale annotations, north arrows, grid bubbles
or room labels. No markdown fences.`,
		framingPrompts[pass], page.Width, page.Height)

	parts := []llms.ContentPart{
		llms.BinaryPart("image/png", imageBytes),
		llms.TextPart(prompt),
	}

	content, err := generate(ctx, p.model, parts, p.cfg.CallTimeout, p.cfg.CallAttempts)
	if err != nil {
		return nil, err
	}

	wire, err := parseRegionResponse(content)
	if err != nil {
		return nil, err
	}

	discount := passDiscounts[pass]
	regions := make([]Region, 0, len(wire.Regions))
	for _, r := range wire.Regions {
		if r.W <= 0 || r.H <= 0 {
			continue
		}
		if r.W > p.cfg.MaxRegionAxisPx || r.H > p.cfg.MaxRegionAxisPx {
			// Oversized boxes are text labels, not symbols.
			continue
		}
		conf := r.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		regions = append(regions, Region{
			Bounds: callout.Bounds{
				X1: r.X, Y1: r.Y,
				X2: r.X + r.W, Y2: r.Y + r.H,
			},
			Ref:        callout.NormalizeRef(r.Ref),
			Confidence: conf * discount,
		})
	}
	return regions, nil
}

// merge collapses proposals from different passes that describe the same
// symbol, keeping the highest-confidence member of each position cluster.
func (p *Proposer) merge(regions []Region) []Region {
	merged := make([]Region, 0, len(regions))
	for _, r := range regions {
		found := false
		for i := range merged {
			if callout.Distance(r.Bounds.Center(), merged[i].Bounds.Center()) <= float64(p.cfg.MergeDistancePx) {
				if r.Confidence > merged[i].Confidence {
					merged[i] = r
				}
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, r)
		}
	}
	return merged
}

type wireRegion struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Ref        string  `json:"ref"`
	Confidence float64 `json:"confidence"`
}

type wireRegionResponse struct {
	Regions []wireRegion `json:"regions"`
}

func parseRegionResponse(content string) (*wireRegionResponse, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("response contains no JSON object")
	}
	var wire wireRegionResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse region response: %w", err)
	}
	if wire.Regions == nil {
		return nil, fmt.Errorf("region response is missing the regions array")
	}
	return &wire, nil
}
