package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/Woody88/sitelink-sub002/internal/callout"
)

// fakeModel plays back canned responses (or errors) in call order, repeating
// the last entry once the script runs out.
type fakeModel struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	content := ""
	if len(f.responses) > 0 {
		if i < len(f.responses) {
			content = f.responses[i]
		} else {
			content = f.responses[len(f.responses)-1]
		}
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testInput(index int) callout.ValidationInput {
	return callout.ValidationInput{
		Index:       index,
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("crop")),
		Bounds:      callout.Bounds{X1: 100, Y1: 100, X2: 160, Y2: 160},
		Center:      callout.Point{X: 130, Y: 130},
	}
}

func quickConfig() ValidatorConfig {
	return ValidatorConfig{
		ConfidenceThreshold: 0.9,
		ItemRetries:         1,
		CallTimeout:         time.Second,
		CallAttempts:        1,
	}
}

func sheetA3() callout.SheetContext {
	return callout.SheetContext{
		CurrentSheet: "A3",
		Registry:     []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7"},
	}
}

func TestValidateIndexCorrespondence(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[
			{"index":0,"is_callout":true,"detected_ref":"2/A5","target_sheet":"A5","callout_type":"detail","confidence":0.95},
			{"index":1,"is_callout":false,"detected_ref":"","confidence":0}
		]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	inputs := []callout.ValidationInput{testInput(0), testInput(1)}
	results := v.Validate(context.Background(), inputs, sheetA3())

	if len(results) != len(inputs) {
		t.Fatalf("expected %d results, got %d", len(inputs), len(results))
	}
	for i, r := range results {
		if r.Index != inputs[i].Index {
			t.Errorf("result %d carries index %d, want %d", i, r.Index, inputs[i].Index)
		}
	}
	if !results[0].IsCallout || results[0].DetectedRef != "2/A5" || results[0].TargetSheet != "A5" {
		t.Errorf("unexpected verdict for candidate 0: %+v", results[0])
	}
	if results[1].IsCallout {
		t.Errorf("candidate 1 should not be a callout: %+v", results[1])
	}
}

func TestValidateFillsMissingIndexes(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"1/A6","confidence":0.95,"callout_type":"detail"}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0), testInput(1)}, sheetA3())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].IsCallout || results[1].Confidence != 0 {
		t.Errorf("missing index should synthesize a zero-confidence result, got %+v", results[1])
	}
	if results[1].Reasoning == "" {
		t.Error("synthesized result should carry a reasoning string")
	}
}

func TestValidateMalformedResponse(t *testing.T) {
	model := &fakeModel{responses: []string{"I could not find any JSON to give you."}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0), testInput(1)}, sheetA3())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.IsCallout || r.Confidence != 0 {
			t.Errorf("malformed batch should yield zero-confidence results, got %+v", r)
		}
	}
}

func TestValidateRetriesIndividually(t *testing.T) {
	// First call (the batch) fails; the two individual retries succeed.
	model := &fakeModel{
		errs: []error{errors.New("connection reset")},
		responses: []string{
			"",
			`{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A5","callout_type":"detail","confidence":0.95}]}`,
		},
	}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0), testInput(1)}, sheetA3())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].IsCallout {
		t.Errorf("retried candidate 0 should validate, got %+v", results[0])
	}
	if !results[1].IsCallout {
		t.Errorf("retried candidate 1 should validate, got %+v", results[1])
	}
}

func TestValidateConfidenceThreshold(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A5","callout_type":"detail","confidence":0.55}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, sheetA3())
	if results[0].IsCallout {
		t.Errorf("confidence 0.55 must not pass the 0.9 threshold: %+v", results[0])
	}
	if results[0].Reasoning == "" {
		t.Error("threshold rejection should carry a reasoning string")
	}
}

func TestValidateFormatFilter(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"1/4","callout_type":"detail","confidence":0.97}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, sheetA3())
	if results[0].IsCallout {
		t.Errorf("scale fraction 1/4 must be rejected: %+v", results[0])
	}
}

func TestValidateRejectsBareSheetTokens(t *testing.T) {
	// A bare sheet token with no detail component never validates, whether it
	// names the current sheet or another registry member.
	for _, ref := range []string{"A3", "A6"} {
		model := &fakeModel{responses: []string{
			`{"results":[{"index":0,"is_callout":true,"detected_ref":"` + ref + `","callout_type":"unknown","confidence":0.95}]}`,
		}}
		v := NewValidator(model, nil, quickConfig(), nil)

		results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, sheetA3())
		if results[0].IsCallout {
			t.Errorf("bare reference %q must be rejected: %+v", ref, results[0])
		}
	}
}

func TestValidateRegistryFilter(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A9","callout_type":"detail","confidence":0.95}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, sheetA3())
	if results[0].IsCallout {
		t.Errorf("target A9 is outside the registry and must be rejected: %+v", results[0])
	}
}

func TestValidateFuzzyRegistryMatch(t *testing.T) {
	// Model read "A1O1" for registry member "A101".
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A1O1","callout_type":"detail","confidence":0.95}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	ctx := callout.SheetContext{CurrentSheet: "A3", Registry: []string{"A101", "A102"}}
	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, ctx)
	if !results[0].IsCallout {
		t.Fatalf("fuzzy-correctable target should validate: %+v", results[0])
	}
	if results[0].TargetSheet != "A101" || !results[0].FuzzyMatched {
		t.Errorf("expected fuzzy match to A101, got %+v", results[0])
	}
}

func TestValidateDerivesTargetSheet(t *testing.T) {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"3.1/A-101","callout_type":"detail","confidence":0.95}]}`,
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	ctx := callout.SheetContext{Registry: []string{"A-101"}}
	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, ctx)
	if results[0].TargetSheet != "A-101" {
		t.Errorf("target sheet should derive from the ref, got %q", results[0].TargetSheet)
	}
}

func TestValidateFencedJSONTolerated(t *testing.T) {
	model := &fakeModel{responses: []string{
		"```json\n" + `{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A5","callout_type":"detail","confidence":0.95}]}` + "\n```",
	}}
	v := NewValidator(model, nil, quickConfig(), nil)

	results := v.Validate(context.Background(), []callout.ValidationInput{testInput(0)}, sheetA3())
	if !results[0].IsCallout {
		t.Errorf("fenced JSON should still parse: %+v", results[0])
	}
}

func TestParseWireResponseErrors(t *testing.T) {
	cases := []string{
		"no braces here",
		`{"verdicts":[]}`,
		`{"results": "not an array"}`,
	}
	for _, c := range cases {
		if _, err := parseWireResponse(c); err == nil {
			t.Errorf("expected parse error for %q", c)
		}
	}
}

func ExampleValidator_Validate() {
	model := &fakeModel{responses: []string{
		`{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A5","target_sheet":"A5","callout_type":"detail","confidence":0.95}]}`,
	}}
	v := NewValidator(model, nil, DefaultValidatorConfig(), nil)

	results := v.Validate(context.Background(),
		[]callout.ValidationInput{testInput(0)},
		callout.SheetContext{Registry: []string{"A5"}})
	fmt.Println(results[0].DetectedRef, results[0].TargetSheet)
	// Output: 2/A5 A5
}
