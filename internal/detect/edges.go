package detect

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// binaryImage is a row-major boolean raster.
type binaryImage [][]bool

// edgeThreshold is the grayscale gradient above which a pixel counts as an
// edge. Plan linework is high contrast, so a fixed threshold holds up well.
const edgeThreshold = 30

// detectEdges produces a binary edge map of the page.
//
// The image is grayscaled and lightly blurred first (scanned sheets carry
// speckle noise that would otherwise fragment contours), then a simple
// horizontal/vertical gradient threshold marks edge pixels. Border pixels
// are never edges.
func detectEdges(img image.Image) binaryImage {
	gray := effect.Grayscale(blur.Gaussian(img, 1.0))

	b := gray.Bounds()
	width := b.Dx()
	height := b.Dy()

	edges := make(binaryImage, height)
	for y := 0; y < height; y++ {
		edges[y] = make([]bool, width)
		if y == 0 || y == height-1 {
			continue
		}
		for x := 1; x < width-1; x++ {
			c := grayAt(gray, b, x, y)
			dx := absInt(c - grayAt(gray, b, x+1, y))
			dy := absInt(c - grayAt(gray, b, x, y+1))
			if dx > edgeThreshold || dy > edgeThreshold {
				edges[y][x] = true
			}
		}
	}
	return edges
}

// darkMask marks pixels dark enough to be ink.
func darkMask(img image.Image, threshold int) binaryImage {
	gray := effect.Grayscale(img)
	b := gray.Bounds()
	width := b.Dx()
	height := b.Dy()

	mask := make(binaryImage, height)
	for y := 0; y < height; y++ {
		mask[y] = make([]bool, width)
		for x := 0; x < width; x++ {
			if grayAt(gray, b, x, y) < threshold {
				mask[y][x] = true
			}
		}
	}
	return mask
}

func grayAt(gray *image.RGBA, b image.Rectangle, x, y int) int {
	r, _, _, _ := gray.At(x+b.Min.X, y+b.Min.Y).RGBA()
	return int(r >> 8)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
