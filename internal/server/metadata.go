package server

import (
	"context"
	"image"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
	"github.com/Woody88/sitelink-sub002/internal/ocr"
)

// sheetNumberPattern matches conventional sheet identifiers in a title
// block: a short discipline prefix followed by a number ("A101", "A-101",
// "S2.1", "M-1.02").
var sheetNumberPattern = regexp.MustCompile(`^[A-Z]{1,3}-?[0-9]{1,4}(\.[0-9]+)?$`)

type titleBlock struct {
	sheetNumber string
	title       string
}

// extractMetadata OCRs the bottom-right corner of the sheet, where the title
// block conventionally sits, and picks out the sheet number and title. Any
// failure degrades to empty fields.
func extractMetadata(ctx context.Context, engine ocr.Engine, page *imaging.Page, log *logrus.Entry) titleBlock {
	if engine == nil || ctx.Err() != nil {
		return titleBlock{}
	}

	region := image.Rect(
		page.Width*7/10,
		page.Height*3/4,
		page.Width,
		page.Height,
	)
	words, err := engine.WordsInRegion(page.Image, region)
	if err != nil {
		log.WithError(err).Warn("title block OCR failed")
		return titleBlock{}
	}

	return titleBlock{
		sheetNumber: findSheetNumber(words),
		title:       findTitle(words),
	}
}

// findSheetNumber returns the bottom-most word matching the sheet-number
// pattern; title blocks print the sheet number below the title.
func findSheetNumber(words []ocr.Word) string {
	best := ""
	bestY := -1
	for _, w := range words {
		token := callout.NormalizeRef(w.Text)
		if !sheetNumberPattern.MatchString(token) {
			continue
		}
		if w.Y1 > bestY {
			best = token
			bestY = w.Y1
		}
	}
	return best
}

// findTitle joins the longest same-line run of alphabetic words, which in
// practice is the sheet title ("SECOND FLOOR PLAN").
func findTitle(words []ocr.Word) string {
	lines := make(map[int][]string)
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if len(text) < 3 || !alphabetic(text) {
			continue
		}
		// Bucket by row, tolerating small baseline jitter.
		row := w.Y1 / 20
		lines[row] = append(lines[row], strings.ToUpper(text))
	}

	best := make([]string, 0)
	bestRow := 0
	for row, line := range lines {
		if len(line) > len(best) || (len(line) == len(best) && row < bestRow) {
			best = line
			bestRow = row
		}
	}
	return strings.Join(best, " ")
}

func alphabetic(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
