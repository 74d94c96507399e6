// Package vision validates candidate crops with a vision-capable language
// model: it batches crops under a token budget, sends one structured prompt
// per batch, parses a strict per-index JSON result, and applies the shared
// policy filters (confidence threshold, reference format, registry
// membership).
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/Woody88/sitelink-sub002/internal/callout"
)

// ValidatorConfig tunes the validation stage.
type ValidatorConfig struct {
	// ConfidenceThreshold below which is_callout flips to false; low model
	// confidence is a strong false-positive signal (scale text, dimensions).
	ConfidenceThreshold float64

	// ItemRetries is how many individual (batch-of-one) retries a failed
	// item gets after its batch call failed.
	ItemRetries int

	// CallTimeout bounds a single model call.
	CallTimeout time.Duration

	// CallAttempts is the number of attempts per logical call, with
	// exponential backoff between them.
	CallAttempts int
}

// DefaultValidatorConfig returns the reference tuning.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ConfidenceThreshold: 0.9,
		ItemRetries:         2,
		CallTimeout:         60 * time.Second,
		CallAttempts:        3,
	}
}

// Validator sends crop batches to the vision model and post-processes the
// verdicts. A single bad crop or failed call never fails the whole sheet:
// exhausted retries yield zero-confidence results.
type Validator struct {
	model   llms.Model
	batcher *Batcher
	cfg     ValidatorConfig
	log     *logrus.Entry
}

// NewValidator constructs a validator around an injected model client.
func NewValidator(model llms.Model, batcher *Batcher, cfg ValidatorConfig, log *logrus.Entry) *Validator {
	def := DefaultValidatorConfig()
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.ItemRetries <= 0 {
		cfg.ItemRetries = def.ItemRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.CallAttempts <= 0 {
		cfg.CallAttempts = def.CallAttempts
	}
	if batcher == nil {
		batcher = NewBatcher(DefaultBatcherConfig())
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Validator{model: model, batcher: batcher, cfg: cfg, log: log}
}

// Validate runs every input through the model and returns exactly one result
// per input, in input order, each carrying its input's index.
func (v *Validator) Validate(ctx context.Context, inputs []callout.ValidationInput, sheet callout.SheetContext) []callout.ValidationResult {
	if len(inputs) == 0 {
		return nil
	}

	results := make(map[int]callout.ValidationResult, len(inputs))
	failed := make([]callout.ValidationInput, 0)

	for bi, batch := range v.batcher.Batches(inputs) {
		batchResults, err := v.callBatch(ctx, batch, sheet)
		if err != nil {
			v.log.WithError(err).WithFields(logrus.Fields{
				"batch": bi,
				"size":  len(batch),
			}).Warn("batch validation failed, queuing items for individual retry")
			failed = append(failed, batch...)
			continue
		}
		for _, r := range batchResults {
			results[r.Index] = r
		}
	}

	// Individual retries run after all batches complete.
	for _, in := range failed {
		results[in.Index] = v.retryItem(ctx, in, sheet)
	}

	out := make([]callout.ValidationResult, 0, len(inputs))
	for _, in := range inputs {
		r, ok := results[in.Index]
		if !ok {
			r = noResult(in.Index, "no result returned")
		}
		out = append(out, v.applyFilters(r, in, sheet))
	}
	return out
}

// callBatch performs one model call for a batch and parses the verdicts.
// Indexes missing from the response are filled with zero-confidence results.
func (v *Validator) callBatch(ctx context.Context, batch []callout.ValidationInput, sheet callout.SheetContext) ([]callout.ValidationResult, error) {
	parts := make([]llms.ContentPart, 0, len(batch)+1)
	for _, in := range batch {
		raw, err := base64.StdEncoding.DecodeString(in.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("candidate %d carries invalid image data: %w", in.Index, err)
		}
		parts = append(parts, llms.BinaryPart("image/png", raw))
	}
	parts = append(parts, llms.TextPart(buildValidationPrompt(batch, sheet)))

	content, err := generate(ctx, v.model, parts, v.cfg.CallTimeout, v.cfg.CallAttempts)
	if err != nil {
		return nil, err
	}

	wire, err := parseWireResponse(content)
	if err != nil {
		return nil, err
	}

	results := make([]callout.ValidationResult, 0, len(batch))
	byPosition := make(map[int]wireResult, len(wire.Results))
	for _, r := range wire.Results {
		if r.Index != nil {
			byPosition[*r.Index] = r
		}
	}
	for pos, in := range batch {
		r, ok := byPosition[pos]
		if !ok {
			results = append(results, noResult(in.Index, "no result returned"))
			continue
		}
		results = append(results, r.toResult(in.Index))
	}
	return results, nil
}

// retryItem revalidates one candidate alone, up to the configured retry
// count. Exhausted retries produce a zero-confidence failure result.
func (v *Validator) retryItem(ctx context.Context, in callout.ValidationInput, sheet callout.SheetContext) callout.ValidationResult {
	single := []callout.ValidationInput{in}
	var lastErr error
	for attempt := 0; attempt <= v.cfg.ItemRetries; attempt++ {
		results, err := v.callBatch(ctx, single, sheet)
		if err == nil && len(results) == 1 {
			return results[0]
		}
		lastErr = err
	}
	v.log.WithError(lastErr).WithField("index", in.Index).Warn("candidate failed all individual retries")
	return noResult(in.Index, "validation failed after retries")
}

// applyFilters runs the shared post-validation policy gate, in order:
// confidence threshold, reference format, registry membership. Rejections
// flip is_callout with a reasoning string; they are never errors.
func (v *Validator) applyFilters(r callout.ValidationResult, in callout.ValidationInput, sheet callout.SheetContext) callout.ValidationResult {
	if !r.IsCallout {
		return r
	}

	r.DetectedRef = callout.NormalizeRef(r.DetectedRef)
	if r.TargetSheet == "" && r.DetectedRef != "" {
		r.TargetSheet = callout.TargetSheet(r.DetectedRef)
	}
	r.TargetSheet = callout.NormalizeRef(r.TargetSheet)

	if r.Confidence < v.cfg.ConfidenceThreshold {
		return rejected(r, fmt.Sprintf("confidence %.2f below threshold %.2f", r.Confidence, v.cfg.ConfidenceThreshold))
	}
	// Only a full DETAIL/SHEET reference passes validation; a bare sheet
	// token out of a crop is usually a partial read, so it is rejected here
	// rather than guessed at. This also covers bare self-references to the
	// current sheet. Region proposals keep their own, looser gate.
	if !callout.IsValidRef(r.DetectedRef) {
		return rejected(r, fmt.Sprintf("reference %q does not match the callout grammar", r.DetectedRef))
	}
	if !sheet.InRegistry(r.TargetSheet) {
		if corrected, ok := sheet.FuzzyMatchSheet(r.TargetSheet); ok {
			r.TargetSheet = corrected
			r.FuzzyMatched = true
		} else {
			return rejected(r, fmt.Sprintf("target sheet %q is not in the plan's sheet registry", r.TargetSheet))
		}
	}
	return r
}

func rejected(r callout.ValidationResult, reason string) callout.ValidationResult {
	r.IsCallout = false
	r.Reasoning = reason
	return r
}

func noResult(index int, reason string) callout.ValidationResult {
	return callout.ValidationResult{
		Index:     index,
		IsCallout: false,
		Type:      callout.TypeUnknown,
		Reasoning: reason,
	}
}

// wireResult mirrors the model's JSON with explicit optional fields; missing
// or invalid data is default-filled, never silently coerced.
type wireResult struct {
	Index       *int     `json:"index"`
	IsCallout   *bool    `json:"is_callout"`
	DetectedRef string   `json:"detected_ref"`
	TargetSheet string   `json:"target_sheet"`
	CalloutType string   `json:"callout_type"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

type wireResponse struct {
	Results []wireResult `json:"results"`
}

// toResult converts a wire verdict to the typed result carrying the input's
// global index.
func (w wireResult) toResult(index int) callout.ValidationResult {
	r := callout.ValidationResult{
		Index:       index,
		DetectedRef: w.DetectedRef,
		TargetSheet: w.TargetSheet,
		Type:        parseCalloutType(w.CalloutType),
		Reasoning:   w.Reasoning,
	}
	if w.IsCallout != nil {
		r.IsCallout = *w.IsCallout
	}
	if w.Confidence != nil {
		c := *w.Confidence
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		r.Confidence = c
	}
	return r
}

func parseCalloutType(s string) callout.CalloutType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "detail":
		return callout.TypeDetail
	case "section":
		return callout.TypeSection
	case "elevation":
		return callout.TypeElevation
	case "revision":
		return callout.TypeRevision
	default:
		return callout.TypeUnknown
	}
}

// parseWireResponse extracts and decodes the response JSON. Models
// occasionally wrap output in markdown fences or prose despite instructions,
// so parsing tolerates surrounding text by slicing the outermost braces.
func parseWireResponse(content string) (*wireResponse, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("response contains no JSON object")
	}

	var wire wireResponse
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse validation response: %w", err)
	}
	if wire.Results == nil {
		return nil, fmt.Errorf("validation response is missing the results array")
	}
	return &wire, nil
}
