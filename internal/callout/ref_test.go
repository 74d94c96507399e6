package callout

import "testing"

func TestIsValidRef(t *testing.T) {
	valid := []string{"1/A6", "A/S2.1", "3.1/A-101", "2/A5", "a/s2.1", " 12/AD-1.02 "}
	for _, ref := range valid {
		if !IsValidRef(ref) {
			t.Errorf("expected %q to be a valid reference", ref)
		}
	}

	invalid := []string{
		"1/4", "1/2", "3/8", // scale fractions
		"A6", "42", // bare tokens
		"", "/", "1/", "/A6",
		"1/A6/B2",
		"NORTH ARROW",
	}
	for _, ref := range invalid {
		if IsValidRef(ref) {
			t.Errorf("expected %q to be rejected", ref)
		}
	}
}

func TestNormalizeRef(t *testing.T) {
	cases := map[string]string{
		" 2/a5 ":  "2/A5",
		"(1/A6)":  "1/A6",
		"3.1/a-101": "3.1/A-101",
	}
	for in, want := range cases {
		if got := NormalizeRef(in); got != want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitRef(t *testing.T) {
	detail, sheet := SplitRef("2/A5")
	if detail != "2" || sheet != "A5" {
		t.Errorf("SplitRef(2/A5) = (%q, %q)", detail, sheet)
	}

	detail, sheet = SplitRef("A5")
	if detail != "" || sheet != "A5" {
		t.Errorf("SplitRef(A5) = (%q, %q)", detail, sheet)
	}

	if TargetSheet("3.1/A-101") != "A-101" {
		t.Errorf("TargetSheet(3.1/A-101) = %q", TargetSheet("3.1/A-101"))
	}
}

func TestIsSelfReference(t *testing.T) {
	if !IsSelfReference("A5", "A5") {
		t.Error("bare reference to current sheet should be a self-reference")
	}
	if IsSelfReference("2/A5", "A5") {
		t.Error("detail reference to current sheet is a legitimate callout")
	}
	if IsSelfReference("A5", "A6") {
		t.Error("reference to a different sheet is not a self-reference")
	}
	if IsSelfReference("A5", "") {
		t.Error("unknown current sheet can never self-reference")
	}
}

func TestRegistryMembership(t *testing.T) {
	ctx := SheetContext{
		CurrentSheet: "A3",
		Registry:     []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7"},
	}

	if !ctx.InRegistry("A5") {
		t.Error("A5 should be accepted by the registry")
	}
	if !ctx.InRegistry("a5") {
		t.Error("registry membership should be case-insensitive")
	}
	if ctx.InRegistry("A9") {
		t.Error("A9 is not a registry member and should be rejected")
	}

	empty := SheetContext{}
	if !empty.InRegistry("ANYTHING") {
		t.Error("an empty registry accepts any sheet")
	}
}

func TestFuzzyMatchSheet(t *testing.T) {
	ctx := SheetContext{Registry: []string{"A101", "S2.1", "A5"}}

	// OCR read "A1O1" (letter O) for "A101".
	got, ok := ctx.FuzzyMatchSheet("A1O1")
	if !ok || got != "A101" {
		t.Errorf("FuzzyMatchSheet(A1O1) = (%q, %v), want (A101, true)", got, ok)
	}

	// Exact members never report a fuzzy match.
	got, ok = ctx.FuzzyMatchSheet("A5")
	if ok || got != "A5" {
		t.Errorf("FuzzyMatchSheet(A5) = (%q, %v), want (A5, false)", got, ok)
	}

	// Two substitutions away stays unmatched.
	if _, ok := ctx.FuzzyMatchSheet("A1OO"); ok {
		t.Error("double substitution should not fuzzy-match")
	}
}

func TestClassifyRef(t *testing.T) {
	if got := ClassifyRef("2/A5", ShapeCircle); got != TypeDetail {
		t.Errorf("numeric detail should classify as detail, got %s", got)
	}
	if got := ClassifyRef("A/S2.1", ShapeCircle); got != TypeSection {
		t.Errorf("letter detail should classify as section, got %s", got)
	}
	if got := ClassifyRef("2/A5", ShapeTriangle); got != TypeRevision {
		t.Errorf("triangle hint should classify as revision, got %s", got)
	}
	if got := ClassifyRef("A5", ShapeUnknown); got != TypeUnknown {
		t.Errorf("bare sheet token should classify as unknown, got %s", got)
	}
}
