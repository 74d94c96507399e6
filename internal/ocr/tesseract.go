// Package ocr provides word-level text extraction with pixel bounding boxes,
// used both as a secondary detection signal and for precise localization of
// reference text inside proposed regions.
//
// The production engine wraps Tesseract via gosseract. Every consumer takes
// the Engine interface so tests can substitute a fake without cgo.
package ocr

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/otiai10/gosseract/v2"
)

// Word is one recognized word with its location and OCR confidence.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"` // 0.0 to 1.0
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
}

// Engine is the pluggable text-extraction capability.
type Engine interface {
	// Words extracts every word on the image with pixel bounding boxes.
	Words(img image.Image) ([]Word, error)

	// WordsInRegion extracts words from one rectangular region. Returned
	// bounding boxes are adjusted to full-image coordinates.
	WordsInRegion(img image.Image, region image.Rectangle) ([]Word, error)
}

// Tesseract is the gosseract-backed Engine.
type Tesseract struct {
	// Language is the Tesseract language code, e.g. "eng".
	Language string
}

// NewTesseract creates an engine for the given language ("eng" if empty).
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language}
}

// Words extracts all words from the image.
//
// Tesseract needs a file path, so the image is written to a uniquely-named
// temporary PNG that is removed before returning on every path.
func (t *Tesseract) Words(img image.Image) ([]Word, error) {
	tmpPath, err := writeTemp(img)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetImage(tmpPath); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		words = append(words, Word{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			X1:         box.Box.Min.X,
			Y1:         box.Box.Min.Y,
			X2:         box.Box.Max.X,
			Y2:         box.Box.Max.Y,
		})
	}
	return words, nil
}

// WordsInRegion crops the region, runs OCR on the crop, and shifts the
// resulting boxes back into full-image coordinates.
func (t *Tesseract) WordsInRegion(img image.Image, region image.Rectangle) ([]Word, error) {
	region = region.Intersect(img.Bounds())
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return nil, fmt.Errorf("OCR region %v lies outside image bounds", region)
	}

	cropped := imaging.Crop(img, region)
	words, err := t.Words(cropped)
	if err != nil {
		return nil, err
	}
	for i := range words {
		words[i].X1 += region.Min.X
		words[i].Y1 += region.Min.Y
		words[i].X2 += region.Min.X
		words[i].Y2 += region.Min.Y
	}
	return words, nil
}

// writeTemp saves an image to a temporary PNG and returns its path.
// The caller removes the file.
func writeTemp(img image.Image) (string, error) {
	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("ocr-%s.png", uuid.NewString()))
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}
