package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
)

// Page is a decoded, rasterized plan sheet ready for detection.
//
// DPI records the resolution the rasterizer used; the shape detector derives
// its expected symbol radius range from it.
type Page struct {
	Image  image.Image
	Width  int
	Height int
	DPI    int
}

// DefaultDPI is assumed when the caller does not state the rasterization
// resolution.
const DefaultDPI = 150

// DecodePage decodes raw image bytes (PNG, JPEG or GIF) into a Page.
//
// Returns an error only when the bytes cannot be decoded at all; an
// unreadable page is the one fatal condition in a detection invocation.
func DecodePage(data []byte, dpi int) (*Page, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	b := img.Bounds()
	return &Page{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		DPI:    dpi,
	}, nil
}
