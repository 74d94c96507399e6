package detect

import (
	"image"
	"image/color"
	"testing"

	"github.com/Woody88/sitelink-sub002/internal/callout"
	"github.com/Woody88/sitelink-sub002/internal/imaging"
)

func blankPage(width, height, dpi int) *imaging.Page {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	return &imaging.Page{Image: img, Width: width, Height: height, DPI: dpi}
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.Color) {
	x := radius
	y := 0
	err := 0
	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)
		if err <= 0 {
			y++
			err += 2*y + 1
		}
		if err > 0 {
			x--
			err -= 2*x + 1
		}
	}
}

// drawTriangle draws an upward-pointing triangle outline.
func drawTriangle(img *image.RGBA, apexX, apexY, halfBase, height int, c color.Color) {
	for i := 0; i <= height; i++ {
		span := halfBase * i / height
		img.Set(apexX-span, apexY+i, c)
		img.Set(apexX+span, apexY+i, c)
	}
	for x := apexX - halfBase; x <= apexX+halfBase; x++ {
		img.Set(x, apexY+height, c)
	}
}

func TestDetectFindsCircle(t *testing.T) {
	page := blankPage(300, 300, 150)
	drawCircle(page.Image.(*image.RGBA), 150, 150, 25, color.Black)

	shapes, err := New(DefaultConfig()).Detect(page)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(shapes) == 0 {
		t.Fatal("expected at least one shape for a drawn circle")
	}

	best := shapes[0]
	if callout.Distance(best.Center, callout.Point{X: 150, Y: 150}) > 15 {
		t.Errorf("detected center %+v too far from (150,150)", best.Center)
	}
	if best.Method == "" {
		t.Error("every shape must be tagged with its detection method")
	}
}

func TestDetectEmptyPage(t *testing.T) {
	shapes, err := New(DefaultConfig()).Detect(blankPage(200, 200, 150))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(shapes) != 0 {
		t.Errorf("expected no shapes on a blank page, got %d", len(shapes))
	}
}

func TestDetectNilPage(t *testing.T) {
	if _, err := New(DefaultConfig()).Detect(nil); err == nil {
		t.Error("expected an error for a nil page")
	}
}

func TestClassifyContourCircle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	drawCircle(img, 60, 60, 30, color.Black)

	contour := collectDark(img)
	bounds := contourBounds(contour)
	shapeType, confidence := classifyContour(contour, bounds)
	if shapeType != callout.ShapeCircle {
		t.Errorf("expected circle, got %s", shapeType)
	}
	if confidence <= 0.8 {
		t.Errorf("circle outline should classify with high confidence, got %v", confidence)
	}
}

func TestClassifyContourTriangle(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 120, 120))
	drawTriangle(img, 60, 20, 40, 70, color.Black)

	contour := collectDark(img)
	bounds := contourBounds(contour)
	shapeType, _ := classifyContour(contour, bounds)
	if shapeType != callout.ShapeTriangle {
		t.Errorf("expected triangle, got %s", shapeType)
	}
}

func collectDark(img *image.RGBA) []callout.Point {
	points := make([]callout.Point, 0)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a > 0 && r>>8 < 128 && g>>8 < 128 && bl>>8 < 128 {
				points = append(points, callout.Point{X: x, Y: y})
			}
		}
	}
	return points
}

func TestDropOverlapping(t *testing.T) {
	shapes := []callout.Shape{
		{Center: callout.Point{X: 50, Y: 50}, Bounds: callout.Bounds{X1: 30, Y1: 30, X2: 70, Y2: 70}, Confidence: 0.9, Method: "hough"},
		{Center: callout.Point{X: 52, Y: 51}, Bounds: callout.Bounds{X1: 32, Y1: 31, X2: 72, Y2: 71}, Confidence: 0.6, Method: "contours"},
		{Center: callout.Point{X: 200, Y: 200}, Bounds: callout.Bounds{X1: 180, Y1: 180, X2: 220, Y2: 220}, Confidence: 0.7, Method: "blobs"},
	}
	kept := dropOverlapping(shapes)
	if len(kept) != 2 {
		t.Fatalf("expected 2 shapes after overlap removal, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("highest-confidence shape should be kept first, got %v", kept[0].Confidence)
	}
}
