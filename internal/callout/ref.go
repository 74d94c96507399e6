package callout

import (
	"regexp"
	"strings"
)

// refPattern matches the DETAIL/SHEET reference grammar. Both components are
// letters, digits, dots and hyphens; matching is case-insensitive because
// normalization upper-cases first.
var refPattern = regexp.MustCompile(`^[A-Z0-9.\-]+/[A-Z0-9.\-]+$`)

// scalePattern matches scale-style fractions ("1/4", "1/2", "3/8") that
// coincidentally satisfy the reference grammar: a single digit over 2, 4 or 8.
var scalePattern = regexp.MustCompile(`^[0-9]/[248]$`)

// sheetPattern matches a bare sheet token (e.g. "A5", "S2.1", "A-101").
var sheetPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]*$`)

var (
	numericDetail = regexp.MustCompile(`^[0-9.]+$`)
	letterDetail  = regexp.MustCompile(`^[A-Z]$`)
)

// NormalizeRef upper-cases a detected reference and strips surrounding
// whitespace and stray punctuation left behind by OCR.
func NormalizeRef(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Trim(s, "()[]{}:;,")
	return s
}

// IsValidRef reports whether a normalized string satisfies the DETAIL/SHEET
// reference grammar and is not a scale-style fraction.
func IsValidRef(ref string) bool {
	ref = NormalizeRef(ref)
	if !refPattern.MatchString(ref) {
		return false
	}
	return !scalePattern.MatchString(ref)
}

// SplitRef separates a reference into its detail and sheet components.
// A bare token without a slash is treated as a sheet-only reference.
func SplitRef(ref string) (detail, sheet string) {
	ref = NormalizeRef(ref)
	idx := strings.LastIndex(ref, "/")
	if idx < 0 {
		return "", ref
	}
	return ref[:idx], ref[idx+1:]
}

// TargetSheet returns the sheet component of a reference: the substring
// after the last "/", or the whole token when no slash is present.
func TargetSheet(ref string) string {
	_, sheet := SplitRef(ref)
	return sheet
}

// IsSelfReference reports whether a reference points back at the sheet being
// analyzed with no distinct detail component. "2/A5" on sheet A5 is a
// legitimate callout to a detail on the same sheet; a bare "A5" is not.
func IsSelfReference(ref, currentSheet string) bool {
	if currentSheet == "" {
		return false
	}
	detail, sheet := SplitRef(ref)
	if detail != "" {
		return false
	}
	return strings.EqualFold(sheet, currentSheet)
}

// InRegistry reports whether a target sheet is a member of the registry.
// An empty registry accepts any sheet. Comparison is case-insensitive.
func (c SheetContext) InRegistry(sheet string) bool {
	if !c.HasRegistry() {
		return true
	}
	for _, s := range c.Registry {
		if strings.EqualFold(s, sheet) {
			return true
		}
	}
	return false
}

// ocrConfusions maps characters Tesseract and vision models routinely swap
// on low-resolution plan text.
var ocrConfusions = map[byte][]byte{
	'O': {'0'}, '0': {'O'},
	'I': {'1'}, '1': {'I'},
	'S': {'5'}, '5': {'S'},
	'B': {'8'}, '8': {'B'},
	'Z': {'2'}, '2': {'Z'},
}

// FuzzyMatchSheet attempts to resolve a target sheet that misses the registry
// by exactly one OCR-confusable character. It returns the registry member and
// true on success, or the input unchanged and false.
//
// Only single-substitution corrections are attempted; anything looser would
// start inventing sheets.
func (c SheetContext) FuzzyMatchSheet(sheet string) (string, bool) {
	if !c.HasRegistry() || sheet == "" {
		return sheet, false
	}
	up := strings.ToUpper(sheet)
	if c.InRegistry(up) {
		return up, false
	}
	for i := 0; i < len(up); i++ {
		subs, ok := ocrConfusions[up[i]]
		if !ok {
			continue
		}
		for _, sub := range subs {
			candidate := up[:i] + string(sub) + up[i+1:]
			if c.InRegistry(candidate) {
				for _, member := range c.Registry {
					if strings.EqualFold(member, candidate) {
						return strings.ToUpper(member), true
					}
				}
			}
		}
	}
	return sheet, false
}

// LooksLikeSheetToken reports whether a normalized token has the shape of a
// sheet identifier (letter-led, e.g. "A5", "S2.1", "A-101"). Used by the OCR
// strategy to pick candidate words before validation.
func LooksLikeSheetToken(token string) bool {
	return sheetPattern.MatchString(NormalizeRef(token))
}

// ClassifyRef infers the semantic callout type from a reference's shape and
// the geometry hint of the symbol that contained it. The vision model's own
// type wins when it supplies one; this is the fallback.
func ClassifyRef(ref string, hint ShapeType) CalloutType {
	switch hint {
	case ShapeTriangle:
		return TypeRevision
	case ShapeCompound:
		return TypeSection
	}
	detail, _ := SplitRef(ref)
	switch {
	case detail == "":
		return TypeUnknown
	case numericDetail.MatchString(detail):
		return TypeDetail
	case letterDetail.MatchString(detail):
		return TypeSection
	default:
		return TypeUnknown
	}
}
