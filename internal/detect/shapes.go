// Package detect finds candidate callout symbols on a rasterized plan sheet
// using geometric techniques: contour analysis, a Hough circle transform and
// dark-blob detection. Techniques run independently and their results are
// unioned; each shape is tagged with the method that found it so downstream
// reporting can break detections down by technique.
package detect

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
)

// Config tunes the shape detector.
type Config struct {
	// MinSymbolInches and MaxSymbolInches bound the expected diameter of a
	// callout bubble on paper; the pixel radius range is derived from DPI.
	MinSymbolInches float64
	MaxSymbolInches float64

	// DarkThreshold is the grayscale value below which a pixel is ink.
	DarkThreshold int
}

// DefaultConfig returns the reference tuning: callout bubbles are drawn
// between roughly 1/4" and 3/4" across.
func DefaultConfig() Config {
	return Config{
		MinSymbolInches: 0.12,
		MaxSymbolInches: 0.75,
		DarkThreshold:   120,
	}
}

// Detector runs the geometric detection techniques.
type Detector struct {
	cfg Config
}

// New creates a detector, filling zero config fields with defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinSymbolInches <= 0 {
		cfg.MinSymbolInches = def.MinSymbolInches
	}
	if cfg.MaxSymbolInches <= 0 {
		cfg.MaxSymbolInches = def.MaxSymbolInches
	}
	if cfg.DarkThreshold <= 0 {
		cfg.DarkThreshold = def.DarkThreshold
	}
	return &Detector{cfg: cfg}
}

// Detect runs every technique over the page and unions the results.
//
// A failure of one technique never fails the sheet: the remaining
// techniques' shapes are returned together with the recorded error, and the
// caller may fall back to OCR-only signal when the list is empty.
func (d *Detector) Detect(page *imaging.Page) ([]callout.Shape, error) {
	if page == nil || page.Image == nil {
		return nil, fmt.Errorf("shape detection requires a decoded page")
	}

	minR := int(float64(page.DPI) * d.cfg.MinSymbolInches / 2)
	maxR := int(float64(page.DPI) * d.cfg.MaxSymbolInches / 2)
	if minR < 4 {
		minR = 4
	}
	if maxR <= minR {
		maxR = minR * 4
	}

	edges := detectEdges(page.Image)

	shapes := make([]callout.Shape, 0)
	shapes = append(shapes, d.detectContours(edges, page, minR, maxR)...)
	shapes = append(shapes, d.detectCircles(edges, page, minR, maxR)...)
	shapes = append(shapes, d.detectBlobs(page, minR, maxR)...)

	shapes = dropOverlapping(shapes)
	d.tagColoredInk(page, shapes)

	sort.Slice(shapes, func(i, j int) bool {
		return shapes[i].Confidence > shapes[j].Confidence
	})
	return shapes, nil
}

// detectContours finds closed contours and classifies them by geometry.
func (d *Detector) detectContours(edges binaryImage, page *imaging.Page, minR, maxR int) []callout.Shape {
	contours := findContours(edges, page.Width, page.Height)

	shapes := make([]callout.Shape, 0)
	for _, contour := range contours {
		bounds := contourBounds(contour)
		w := bounds.Width()
		h := bounds.Height()
		if w < minR || h < minR || w > maxR*4 || h > maxR*4 {
			continue
		}

		shapeType, confidence := classifyContour(contour, bounds)
		if shapeType == callout.ShapeUnknown {
			continue
		}

		shapes = append(shapes, callout.Shape{
			Type:       shapeType,
			Bounds:     bounds,
			Center:     bounds.Center(),
			Method:     "contours",
			Confidence: confidence,
		})
	}
	return shapes
}

// detectCircles runs a Hough circle transform over the edge map.
//
// For each radius, edge pixels vote for candidate centers every 10 degrees;
// accumulator peaks above ~60% of the expected circumference count are kept
// as circles. Confidence is the vote fraction, capped at 1.
func (d *Detector) detectCircles(edges binaryImage, page *imaging.Page, minR, maxR int) []callout.Shape {
	width, height := page.Width, page.Height

	shapes := make([]callout.Shape, 0)
	for radius := minR; radius <= maxR; radius += maxInt(1, (maxR-minR)/12) {
		accumulator := make([][]int, height)
		for y := range accumulator {
			accumulator[y] = make([]int, width)
		}

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if !edges[y][x] {
					continue
				}
				for angle := 0; angle < 360; angle += 10 {
					rad := float64(angle) * math.Pi / 180
					cx := x - int(float64(radius)*math.Cos(rad))
					cy := y - int(float64(radius)*math.Sin(rad))
					if cx >= 0 && cx < width && cy >= 0 && cy < height {
						accumulator[cy][cx]++
					}
				}
			}
		}

		threshold := int(float64(2*radius) * 0.6)
		for y := radius; y < height-radius; y++ {
			for x := radius; x < width-radius; x++ {
				if accumulator[y][x] < threshold || !isLocalMax(accumulator, x, y, width, height) {
					continue
				}
				confidence := math.Min(float64(accumulator[y][x])/float64(2*radius), 1.0)
				shapes = append(shapes, callout.Shape{
					Type: callout.ShapeCircle,
					Bounds: callout.Bounds{
						X1: x - radius, Y1: y - radius,
						X2: x + radius, Y2: y + radius,
					},
					Center:     callout.Point{X: x, Y: y},
					Method:     "hough",
					Confidence: confidence,
				})
			}
		}
	}
	return shapes
}

// detectBlobs finds connected dark components with symbol-like size and
// aspect. This catches solid-filled markers the edge-based techniques miss.
func (d *Detector) detectBlobs(page *imaging.Page, minR, maxR int) []callout.Shape {
	mask := darkMask(page.Image, d.cfg.DarkThreshold)
	components := findContours(mask, page.Width, page.Height)

	shapes := make([]callout.Shape, 0)
	for _, component := range components {
		bounds := contourBounds(component)
		w := bounds.Width()
		h := bounds.Height()
		if w < minR*2 || h < minR*2 || w > maxR*2 || h > maxR*2 {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect < 0.5 || aspect > 2.0 {
			continue
		}
		// Fill ratio separates solid markers from hollow linework boxes.
		fill := float64(len(component)) / float64(w*h)
		if fill < 0.35 {
			continue
		}
		shapes = append(shapes, callout.Shape{
			Type:       callout.ShapeUnknown,
			Bounds:     bounds,
			Center:     bounds.Center(),
			Method:     "blobs",
			Confidence: math.Min(fill, 1.0),
		})
	}
	return shapes
}

// tagColoredInk samples each shape's ink and flags colored symbols, a hint
// that the candidate belongs to a revision markup layer.
func (d *Detector) tagColoredInk(page *imaging.Page, shapes []callout.Shape) {
	for i := range shapes {
		b := shapes[i].Bounds
		sample := imaging.SampleInk(page.Image, image.Rect(b.X1, b.Y1, b.X2, b.Y2))
		shapes[i].ColoredInk = sample.Colored
	}
}

// classifyContour decides what kind of symbol a closed contour outlines.
//
// The radial profile around the bounding-box center separates circles (low
// deviation) from triangles (high deviation with three distance peaks);
// elongated outlines whose larger end fits a circle are compound section
// cuts (bubble plus tail).
func classifyContour(contour []callout.Point, bounds callout.Bounds) (callout.ShapeType, float64) {
	w := float64(bounds.Width())
	h := float64(bounds.Height())
	if w <= 0 || h <= 0 {
		return callout.ShapeUnknown, 0
	}
	aspect := w / h
	center := bounds.Center()

	mean, dev := radialProfile(contour, center)
	if mean <= 0 {
		return callout.ShapeUnknown, 0
	}
	relDev := dev / mean

	switch {
	case relDev < 0.12 && aspect > 0.8 && aspect < 1.25:
		return callout.ShapeCircle, 1.0 - relDev
	case relDev < 0.28 && (aspect >= 1.25 && aspect < 2.2 || aspect > 0.45 && aspect <= 0.8):
		return callout.ShapeCompound, 0.8 - relDev
	case relDev >= 0.12 && relDev < 0.45 && aspect > 0.6 && aspect < 1.7 && isTriangular(contour, bounds):
		return callout.ShapeTriangle, 0.7 - relDev/2
	default:
		return callout.ShapeUnknown, 0
	}
}

// isTriangular checks for the asymmetric row-width signature of a triangle:
// one end of the bounding box much narrower than the other.
func isTriangular(contour []callout.Point, bounds callout.Bounds) bool {
	h := bounds.Height()
	if h < 8 {
		return false
	}
	band := maxInt(2, h/5)

	topMin, topMax := bounds.X2, bounds.X1
	botMin, botMax := bounds.X2, bounds.X1
	for _, p := range contour {
		if p.Y-bounds.Y1 < band {
			topMin = minInt(topMin, p.X)
			topMax = maxInt(topMax, p.X)
		}
		if bounds.Y2-p.Y <= band {
			botMin = minInt(botMin, p.X)
			botMax = maxInt(botMax, p.X)
		}
	}
	topW := maxInt(topMax-topMin, 1)
	botW := maxInt(botMax-botMin, 1)
	ratio := float64(maxInt(topW, botW)) / float64(minInt(topW, botW))
	return ratio > 2.5
}

// radialProfile returns the mean and standard deviation of contour point
// distances from a center.
func radialProfile(contour []callout.Point, center callout.Point) (mean, dev float64) {
	if len(contour) == 0 {
		return 0, 0
	}
	var sum float64
	dists := make([]float64, len(contour))
	for i, p := range contour {
		dx := float64(p.X - center.X)
		dy := float64(p.Y - center.Y)
		dists[i] = math.Sqrt(dx*dx + dy*dy)
		sum += dists[i]
	}
	mean = sum / float64(len(dists))
	var varSum float64
	for _, d := range dists {
		varSum += (d - mean) * (d - mean)
	}
	dev = math.Sqrt(varSum / float64(len(dists)))
	return mean, dev
}

// findContours groups connected true pixels into components using iterative
// flood fill with 8-connectivity. Components under 10 pixels are noise.
func findContours(mask binaryImage, width, height int) [][]callout.Point {
	visited := make([][]bool, height)
	for y := range visited {
		visited[y] = make([]bool, width)
	}

	contours := make([][]callout.Point, 0)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if !mask[y][x] || visited[y][x] {
				continue
			}
			contour := floodFill(mask, visited, x, y, width, height)
			if len(contour) >= 10 {
				contours = append(contours, contour)
			}
		}
	}
	return contours
}

// floodFill walks one connected component with an explicit stack; recursion
// would overflow on the long border contours of a full sheet.
func floodFill(mask binaryImage, visited [][]bool, startX, startY, width, height int) []callout.Point {
	contour := make([]callout.Point, 0)
	stack := []callout.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if p.X < 0 || p.X >= width || p.Y < 0 || p.Y >= height {
			continue
		}
		if visited[p.Y][p.X] || !mask[p.Y][p.X] {
			continue
		}
		visited[p.Y][p.X] = true
		contour = append(contour, p)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, callout.Point{X: p.X + dx, Y: p.Y + dy})
			}
		}
	}
	return contour
}

func contourBounds(contour []callout.Point) callout.Bounds {
	b := callout.Bounds{X1: contour[0].X, Y1: contour[0].Y, X2: contour[0].X, Y2: contour[0].Y}
	for _, p := range contour {
		b.X1 = minInt(b.X1, p.X)
		b.Y1 = minInt(b.Y1, p.Y)
		b.X2 = maxInt(b.X2, p.X)
		b.Y2 = maxInt(b.Y2, p.Y)
	}
	return b
}

func isLocalMax(accumulator [][]int, x, y, width, height int) bool {
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx >= 0 && nx < width && ny >= 0 && ny < height {
				if accumulator[ny][nx] > accumulator[y][x] {
					return false
				}
			}
		}
	}
	return true
}

// dropOverlapping removes lower-confidence shapes whose centers fall inside
// an already-kept shape; techniques routinely re-detect the same symbol.
func dropOverlapping(shapes []callout.Shape) []callout.Shape {
	sorted := make([]callout.Shape, len(shapes))
	copy(sorted, shapes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]callout.Shape, 0, len(sorted))
	for _, s := range sorted {
		duplicate := false
		for _, k := range kept {
			if s.Center.X >= k.Bounds.X1 && s.Center.X <= k.Bounds.X2 &&
				s.Center.Y >= k.Bounds.Y1 && s.Center.Y <= k.Bounds.Y2 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, s)
		}
	}
	return kept
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
