package callout

// Bounds represents a rectangular bounding box in pixel coordinates.
//
// The coordinate convention follows standard image bounds:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner
type Bounds struct {
	X1 int `json:"x1"` // Left edge (inclusive)
	Y1 int `json:"y1"` // Top edge (inclusive)
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Width returns the horizontal extent of the box in pixels.
func (b Bounds) Width() int { return b.X2 - b.X1 }

// Height returns the vertical extent of the box in pixels.
func (b Bounds) Height() int { return b.Y2 - b.Y1 }

// Center returns the center point of the box.
func (b Bounds) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// ShapeType classifies the geometry of a detected candidate symbol.
type ShapeType string

const (
	ShapeCircle   ShapeType = "circle"   // Circular bubble (detail/section callout)
	ShapeTriangle ShapeType = "triangle" // Triangular flag (revision marker)
	ShapeCompound ShapeType = "compound" // Circle with attached tail/flag (section cut)
	ShapeUnknown  ShapeType = "unknown"
)

// Shape represents a candidate symbol found by geometric detection.
//
// Each detection technique tags its output with a Method name so that
// downstream reporting can break detections down by technique.
type Shape struct {
	Type       ShapeType `json:"type"`
	Bounds     Bounds    `json:"bounds"`
	Center     Point     `json:"center"`
	Method     string    `json:"method"`               // Technique that produced this shape
	Confidence float64   `json:"confidence,omitempty"` // Detector confidence (0.0 to 1.0), 0 if unknown
	ColoredInk bool      `json:"colored_ink,omitempty"`
}

// CalloutType is the semantic class of a detected callout.
type CalloutType string

const (
	TypeDetail    CalloutType = "detail"
	TypeSection   CalloutType = "section"
	TypeElevation CalloutType = "elevation"
	TypeRevision  CalloutType = "revision"
	TypeUnknown   CalloutType = "unknown"
)

// Crop is an encoded image region prepared for vision-model validation.
//
// The Index is stable and unique within one batch run; results returned by
// the validator are matched back to their source crop by this index.
type Crop struct {
	Index       int       `json:"index"`
	ImageBase64 string    `json:"image_base64"`
	MimeType    string    `json:"mime_type"`
	Bounds      Bounds    `json:"bounds"`
	Center      Point     `json:"center"`
	ShapeHint   ShapeType `json:"shape_hint,omitempty"`
}

// ValidationInput is one candidate submitted to the vision validator.
//
// It must carry the same index as its source Crop.
type ValidationInput struct {
	Index        int       `json:"index"`
	ImageBase64  string    `json:"image_base64"`
	CandidateRef string    `json:"candidate_ref,omitempty"` // Text already read by OCR, if any
	ShapeHint    ShapeType `json:"shape_hint,omitempty"`
	Bounds       Bounds    `json:"bounds"`
	Center       Point     `json:"center"`
}

// ValidationResult is the vision model's verdict for one candidate.
//
// The index always equals the corresponding input's index. When the model
// omits a result for an index, the pipeline synthesizes a zero-confidence
// entry rather than leaving a hole.
type ValidationResult struct {
	Index       int         `json:"index"`
	IsCallout   bool        `json:"is_callout"`
	DetectedRef string      `json:"detected_ref,omitempty"`
	TargetSheet string      `json:"target_sheet,omitempty"`
	Type        CalloutType `json:"callout_type"`
	Confidence  float64     `json:"confidence"`
	Reasoning   string      `json:"reasoning,omitempty"` // Diagnostic only, never parsed

	// FuzzyMatched records that TargetSheet was corrected to a registry
	// member during post-validation filtering.
	FuzzyMatched bool `json:"fuzzy_matched,omitempty"`
}

// Callout is one validated cross-reference symbol on a sheet.
type Callout struct {
	// Ref is the normalized upper-case reference, either "DETAIL/SHEET"
	// or a bare sheet token.
	Ref string `json:"ref"`

	// TargetSheet is the sheet identifier the callout points at.
	TargetSheet string `json:"target_sheet"`

	Type     CalloutType `json:"type"`
	Position Point       `json:"position"`
	Bounds   Bounds      `json:"bounds"`

	// Confidence is the composite score in [0,1].
	Confidence float64 `json:"confidence"`

	// FoundByBoth marks ensemble detections confirmed by two strategies.
	FoundByBoth bool `json:"found_by_both,omitempty"`

	// FuzzyMatched marks a target sheet that was corrected to a registry
	// member by single-character OCR-confusion matching.
	FuzzyMatched bool `json:"fuzzy_matched,omitempty"`

	// Source names the strategy or technique that produced the detection.
	Source string `json:"source,omitempty"`
}

// Hyperlink is a callout expressed in viewer-overlay coordinates.
//
// X, Y, W, H are image-relative values in [0,1]; PixelX/PixelY preserve the
// original pixel position.
type Hyperlink struct {
	CalloutRef     string  `json:"calloutRef"`
	TargetSheetRef string  `json:"targetSheetRef"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	W              float64 `json:"w"`
	H              float64 `json:"h"`
	PixelX         int     `json:"pixelX"`
	PixelY         int     `json:"pixelY"`
	Confidence     float64 `json:"confidence"`
}

// ConfidenceStats summarizes score distribution across one sheet's callouts.
type ConfidenceStats struct {
	HighConfidence    int      `json:"highConfidence"`
	LowConfidence     int      `json:"lowConfidence"`
	AverageConfidence float64  `json:"averageConfidence"`
	NeedsManualReview []string `json:"needsManualReview"`
}

// AnalysisResult is the terminal output shape shared by every detection
// strategy, so callers are strategy-agnostic.
type AnalysisResult struct {
	Success          bool             `json:"success"`
	SheetNumber      string           `json:"sheetNumber,omitempty"`
	SheetTitle       string           `json:"sheetTitle,omitempty"`
	CalloutsFound    int              `json:"calloutsFound"`
	CalloutsMatched  int              `json:"calloutsMatched"`
	Hyperlinks       []Hyperlink      `json:"hyperlinks"`
	Callouts         []Callout        `json:"callouts,omitempty"`
	UnmatchedRefs    []string         `json:"unmatchedCallouts,omitempty"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Stats            *ConfidenceStats `json:"confidenceStats,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// SheetContext carries the caller-supplied identity and registry for one
// detection invocation. Nothing else persists across invocations.
type SheetContext struct {
	// CurrentSheet is the identifier of the sheet being analyzed.
	// May be empty when unknown.
	CurrentSheet string `json:"current_sheet,omitempty"`

	// Registry is the set of valid sheet identifiers for the plan.
	// An empty registry means "accept any target sheet".
	Registry []string `json:"registry,omitempty"`
}

// HasRegistry reports whether a non-empty registry was supplied.
func (c SheetContext) HasRegistry() bool { return len(c.Registry) > 0 }
