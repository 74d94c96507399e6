package imaging

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"
)

// InkSample describes the dominant dark ink inside a region.
type InkSample struct {
	// Colored is true when the ink is saturated enough to be a colored pen
	// (revision clouds and deltas are commonly drawn in red or blue) rather
	// than the black/gray linework of the base drawing.
	Colored bool

	// Hue is the dominant hue in degrees when Colored, 0 otherwise.
	Hue float64

	// DarkFraction is the fraction of sampled pixels dark enough to count
	// as ink.
	DarkFraction float64
}

// SampleInk inspects the dark pixels of a region and classifies their color.
//
// Plan linework is black on white; a symbol whose ink carries real chroma is
// a strong hint that it belongs to a revision markup layer. Sampling walks a
// coarse grid rather than every pixel, which is accurate enough for
// classification and keeps large regions cheap.
func SampleInk(img image.Image, region image.Rectangle) InkSample {
	region = region.Intersect(img.Bounds())
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return InkSample{}
	}

	step := maxInt(1, minInt(region.Dx(), region.Dy())/32)

	var dark, colored, sampled int
	var hueSum float64

	for y := region.Min.Y; y < region.Max.Y; y += step {
		for x := region.Min.X; x < region.Max.X; x += step {
			sampled++
			c, ok := colorful.MakeColor(img.At(x, y))
			if !ok {
				continue
			}
			h, s, l := c.Hsl()
			if l > 0.6 {
				continue // background
			}
			dark++
			if s > 0.35 && l > 0.08 {
				colored++
				hueSum += h
			}
		}
	}

	if sampled == 0 || dark == 0 {
		return InkSample{}
	}

	sample := InkSample{DarkFraction: float64(dark) / float64(sampled)}
	if float64(colored)/float64(dark) > 0.5 {
		sample.Colored = true
		sample.Hue = hueSum / float64(colored)
	}
	return sample
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
