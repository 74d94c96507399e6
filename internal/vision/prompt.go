package vision

import (
	"fmt"
	"strings"

	"github.com/Woody88/sitelink-sub002/internal/callout"
)

// buildValidationPrompt produces the single structured prompt sent with one
// batch of crops. The model is told to examine every image by position and
// to return one JSON object per image, indexed identically to input order.
func buildValidationPrompt(batch []callout.ValidationInput, ctx callout.SheetContext) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `You are analyzing %d cropped regions from a construction plan sheet.
The images are numbered by position, 0 through %d, in the order given.

For EACH image decide whether it contains a callout: a small geometric symbol
(circle, hexagon, triangle, or circle with a flag/tail) that contains a
detail/sheet cross-reference such as "2/A5" (detail 2 on sheet A5).

These are NOT callouts and must be rejected:
- dimension text and dimension strings
- scale annotations such as 1/4" = 1'-0"
- north arrows
- structural grid bubbles (a circle containing only a single letter or number)
- room names and room number labels
- general notes or schedule text

`, len(batch), len(batch)-1)

	if ctx.CurrentSheet != "" {
		fmt.Fprintf(&sb, "The current sheet is %s.\n", ctx.CurrentSheet)
	}
	if ctx.HasRegistry() {
		fmt.Fprintf(&sb, "Valid sheet numbers for this plan set: %s.\n", strings.Join(ctx.Registry, ", "))
	}

	hints := make([]string, 0)
	for i, in := range batch {
		if in.CandidateRef != "" {
			hints = append(hints, fmt.Sprintf("image %d: OCR read %q nearby", i, in.CandidateRef))
		} else if in.ShapeHint != "" && in.ShapeHint != callout.ShapeUnknown {
			hints = append(hints, fmt.Sprintf("image %d: detected as a %s shape", i, in.ShapeHint))
		}
	}
	if len(hints) > 0 {
		sb.WriteString("\nDetection hints (verify, do not trust blindly):\n")
		for _, h := range hints {
			sb.WriteString("- " + h + "\n")
		}
	}

	sb.WriteString(`
Respond with ONLY a JSON object in exactly this shape, one result per image,
using the image's position as its index:

{"results":[{"index":0,"is_callout":true,"detected_ref":"2/A5","target_sheet":"A5","callout_type":"detail","confidence":0.95,"reasoning":"circle split by horizontal line, 2 over A5"}]}

Rules:
- include every index from 0 to ` + fmt.Sprintf("%d", len(batch)-1) + `, exactly once
- callout_type is one of: detail, section, elevation, revision, unknown
- confidence is a number between 0 and 1
- confidence is how certain you are that the image is a callout with the
  stated reference; when is_callout is false, set detected_ref to "" and
  confidence to 0
- no markdown fences, no prose outside the JSON object`)

	return sb.String()
}
