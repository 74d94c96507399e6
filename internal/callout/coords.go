package callout

import "math"

// NormalizedPoint is a position expressed relative to image dimensions,
// with both components in [0,1].
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Normalize converts a pixel position to image-relative coordinates,
// rounded to 4 decimal places. Used only at the pipeline's output boundary.
func Normalize(p Point, width, height int) NormalizedPoint {
	if width <= 0 || height <= 0 {
		return NormalizedPoint{}
	}
	return NormalizedPoint{
		X: round4(float64(p.X) / float64(width)),
		Y: round4(float64(p.Y) / float64(height)),
	}
}

// Denormalize is the exact inverse of Normalize, subject to rounding: for
// any in-bounds pixel point the round trip is within 1px.
func Denormalize(n NormalizedPoint, width, height int) Point {
	return Point{
		X: int(math.Round(n.X * float64(width))),
		Y: int(math.Round(n.Y * float64(height))),
	}
}

// NormalizeSpan converts a pixel extent (width or height of a box) to an
// image-relative length, rounded to 4 decimal places.
func NormalizeSpan(span, dimension int) float64 {
	if dimension <= 0 {
		return 0
	}
	return round4(float64(span) / float64(dimension))
}

// InBounds reports whether a pixel point lies inside the image.
func InBounds(p Point, width, height int) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < width && p.Y < height
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
