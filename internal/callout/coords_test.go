package callout

import (
	"math"
	"testing"
)

func TestNormalizeRounding(t *testing.T) {
	n := Normalize(Point{X: 1234, Y: 567}, 3400, 2200)
	if n.X != 0.3629 || n.Y != 0.2577 {
		t.Errorf("Normalize = (%v, %v), want (0.3629, 0.2577)", n.X, n.Y)
	}
}

func TestNormalizeBoundsValues(t *testing.T) {
	n := Normalize(Point{X: 0, Y: 0}, 1000, 1000)
	if n.X != 0 || n.Y != 0 {
		t.Errorf("origin should normalize to (0,0), got (%v,%v)", n.X, n.Y)
	}

	n = Normalize(Point{X: 1000, Y: 1000}, 1000, 1000)
	if n.X != 1 || n.Y != 1 {
		t.Errorf("far corner should normalize to (1,1), got (%v,%v)", n.X, n.Y)
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	width, height := 3400, 2200
	points := []Point{
		{0, 0},
		{1, 1},
		{1700, 1100},
		{3399, 2199},
		{137, 2048},
	}
	for _, p := range points {
		back := Denormalize(Normalize(p, width, height), width, height)
		if math.Abs(float64(back.X-p.X)) > 1 || math.Abs(float64(back.Y-p.Y)) > 1 {
			t.Errorf("round trip of %+v produced %+v (more than 1px error)", p, back)
		}
	}
}

func TestInBounds(t *testing.T) {
	if !InBounds(Point{X: 0, Y: 0}, 100, 100) {
		t.Error("origin is in bounds")
	}
	if InBounds(Point{X: 100, Y: 50}, 100, 100) {
		t.Error("x == width is out of bounds")
	}
	if InBounds(Point{X: -1, Y: 50}, 100, 100) {
		t.Error("negative x is out of bounds")
	}
}

func TestNormalizeDegenerateDimensions(t *testing.T) {
	n := Normalize(Point{X: 10, Y: 10}, 0, 0)
	if n.X != 0 || n.Y != 0 {
		t.Errorf("zero dimensions should yield zero coordinates, got %+v", n)
	}
}
