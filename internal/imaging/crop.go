package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// CropResult contains an encoded crop ready for a vision-model request.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`

	// Bounds is the padded source region in page coordinates, after
	// clamping to the page edges.
	Bounds image.Rectangle `json:"-"`
}

// minCropEdge is the smallest edge a crop may have before it is upscaled;
// vision models misread symbol text below roughly this size.
const minCropEdge = 96

// CropPadded extracts a region around a candidate bounding box with padding
// on every side, clamped to the page.
//
// Small crops are upscaled with Lanczos resampling so the reference text
// inside a symbol stays legible to the validator. The returned bounds are
// the actual source region used, so detections can be mapped back to page
// coordinates.
func CropPadded(img image.Image, region image.Rectangle, padding int) (*CropResult, error) {
	b := img.Bounds()
	padded := image.Rect(
		region.Min.X-padding,
		region.Min.Y-padding,
		region.Max.X+padding,
		region.Max.Y+padding,
	).Intersect(b)

	if padded.Dx() <= 0 || padded.Dy() <= 0 {
		return nil, fmt.Errorf("crop region %v lies outside page bounds %v", region, b)
	}

	cropped := imaging.Crop(img, padded)

	if cropped.Bounds().Dx() < minCropEdge || cropped.Bounds().Dy() < minCropEdge {
		scale := float64(minCropEdge) / float64(minInt(cropped.Bounds().Dx(), cropped.Bounds().Dy()))
		w := int(float64(cropped.Bounds().Dx()) * scale)
		h := int(float64(cropped.Bounds().Dy()) * scale)
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}

	return &CropResult{
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
		Bounds:      padded,
	}, nil
}
