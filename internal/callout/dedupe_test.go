package callout

import (
	"reflect"
	"testing"
)

func mk(ref string, x, y int, conf float64) Callout {
	return Callout{
		Ref:         NormalizeRef(ref),
		TargetSheet: TargetSheet(ref),
		Position:    Point{X: x, Y: y},
		Bounds:      Bounds{X1: x - 25, Y1: y - 25, X2: x + 25, Y2: y + 25},
		Confidence:  conf,
	}
}

func TestDedupeCloseDuplicatesCollapse(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	in := []Callout{
		mk("1/A6", 500, 500, 0.7),
		mk("1/A6", 530, 500, 0.9), // 30px away, same symbol
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Errorf("the higher-confidence member should win, got %v", out[0].Confidence)
	}
}

func TestDedupeDistantDuplicatesSurvive(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	in := []Callout{
		mk("1/A6", 500, 500, 0.7),
		mk("1/A6", 1000, 500, 0.8), // 500px away, distinct instance
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 2 {
		t.Fatalf("expected 2 survivors at 500px separation, got %d", len(out))
	}
}

func TestDedupeIdempotence(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	in := []Callout{
		mk("1/A6", 500, 500, 0.7),
		mk("1/A6", 530, 500, 0.9),
		mk("1/A6", 2500, 1800, 0.8),
		mk("2/A5", 100, 100, 0.6),
		mk("A/S2.1", 900, 300, 0.5),
		mk("A/S2.1", 950, 320, 0.4),
	}
	once := d.Dedupe(in, 3400, 2200)
	twice := d.Dedupe(once, 3400, 2200)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("dedupe is not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestDedupeColinearNoiseCollapses(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	// Four detections along one horizontal line, evenly spaced wider than the
	// cluster distance: the signature of a scale bar, not four callouts.
	in := []Callout{
		mk("1/4", 400, 2100, 0.5),
		mk("1/4", 800, 2100, 0.6),
		mk("1/4", 1200, 2105, 0.9),
		mk("1/4", 1600, 2110, 0.4),
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 1 {
		t.Fatalf("co-linear repeats should collapse to 1, got %d", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Errorf("highest-confidence member should survive, got %v", out[0].Confidence)
	}
}

func TestDedupeScatteredTripleKeepsFarthestPair(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	// Three scattered detections, farthest pair well beyond the clearly
	// distinct distance.
	in := []Callout{
		mk("3/A7", 300, 300, 0.8),
		mk("3/A7", 700, 900, 0.6),
		mk("3/A7", 3000, 1900, 0.7),
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 2 {
		t.Fatalf("expected farthest pair to survive, got %d", len(out))
	}
}

func TestDedupeModerateSeparationLowConfidenceCollapses(t *testing.T) {
	cfg := DefaultDedupeConfig()
	cfg.ClusterDistancePx = 100
	d := NewDeduplicator(cfg)
	// Three survivors in one quadrant ~250px apart with weak confidence:
	// precision wins, keep only the best.
	in := []Callout{
		mk("5/A2", 300, 300, 0.35),
		mk("5/A2", 520, 310, 0.3),
		mk("5/A2", 430, 480, 0.25),
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 1 {
		t.Fatalf("ambiguous low-confidence cluster should collapse to 1, got %d", len(out))
	}
}

func TestDedupeDifferentRefsNeverMerge(t *testing.T) {
	d := NewDeduplicator(DefaultDedupeConfig())
	in := []Callout{
		mk("1/A6", 500, 500, 0.7),
		mk("2/A6", 510, 505, 0.8), // different detail, same spot
	}
	out := d.Dedupe(in, 3400, 2200)
	if len(out) != 2 {
		t.Fatalf("different references must never merge, got %d", len(out))
	}
}
