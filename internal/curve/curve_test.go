package curve

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/blockmerge/internal/merge"
)

func TestNewIsDefaultWeights(t *testing.T) {
	t.Parallel()
	if got := New().JSON(); got != merge.DefaultWeightsJSON {
		t.Fatalf("New().JSON() = %s, want %s", got, merge.DefaultWeightsJSON)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	c := New()
	if !c.Load("[0,1.4,2.6,-5,250,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20]") {
		t.Fatal("expected 21-element array to load")
	}
	want := []float64{0, 1, 3, 0, 100, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	if diff := cmp.Diff(want, c.Values()); diff != "" {
		t.Fatalf("loaded values mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"[1,2,3]", "not json", `{"a":1}`, ""} {
		c := New()
		if c.Load(bad) {
			t.Errorf("Load(%q) should be rejected", bad)
		}
		if c.JSON() != merge.DefaultWeightsJSON {
			t.Errorf("Load(%q) modified the curve", bad)
		}
	}
}

func TestApplyLocalDelta(t *testing.T) {
	t.Parallel()
	c := New()
	for i := range Points {
		_ = c.Set(i, 50)
	}
	if err := c.ApplyLocalDelta(10, 20, 3); err != nil {
		t.Fatalf("ApplyLocalDelta: %v", err)
	}

	if got := c.Value(10); got != 70 {
		t.Fatalf("center = %v, want 70", got)
	}
	// Symmetric falloff, decreasing with distance.
	for d := 1; d <= 10; d++ {
		left, right := c.Value(10-d), c.Value(10+d)
		if math.Abs(left-right) > 1e-9 {
			t.Fatalf("asymmetric at distance %d: %v vs %v", d, left, right)
		}
		if left > c.Value(10-d+1) || left < 50 {
			t.Fatalf("falloff not monotonic at distance %d: %v", d, left)
		}
	}

	sigma := 3 / 1.8
	want := 50 + 20*math.Exp(-1/(2*sigma*sigma))
	if math.Abs(c.Value(11)-want) > 1e-9 {
		t.Fatalf("neighbour = %v, want %v", c.Value(11), want)
	}
}

func TestApplyLocalDeltaClampsAndValidates(t *testing.T) {
	t.Parallel()
	c := New()
	if err := c.ApplyLocalDelta(0, 500, 1); err != nil {
		t.Fatalf("ApplyLocalDelta: %v", err)
	}
	if c.Value(0) != 100 {
		t.Fatalf("value not clamped: %v", c.Value(0))
	}
	if err := c.ApplyLocalDelta(0, -500, 1); err != nil {
		t.Fatalf("ApplyLocalDelta: %v", err)
	}
	if c.Value(0) != 0 {
		t.Fatalf("value not clamped: %v", c.Value(0))
	}
	if err := c.ApplyLocalDelta(Points, 1, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if err := c.Set(-1, 1); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestJSONRoundTripsThroughMergeParser(t *testing.T) {
	t.Parallel()
	c := New()
	_ = c.ApplyLocalDelta(4, -33.3, 2)
	c.Snap()

	weights, fellBack := merge.ParseWeights(c.JSON())
	if fellBack {
		t.Fatalf("merge could not parse %s", c.JSON())
	}
	if diff := cmp.Diff(c.Values(), weights); diff != "" {
		t.Fatalf("weights mismatch (-curve +parsed):\n%s", diff)
	}
}

func TestSections(t *testing.T) {
	t.Parallel()
	counts := map[Section]int{}
	for i := range Points {
		counts[SectionOf(i)]++
	}
	want := map[Section]int{SectionIn: 9, SectionMid: 3, SectionOut: 9}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Fatalf("section sizes mismatch (-want +got):\n%s", diff)
	}
	if labels := Labels(); labels[0] != "IN0" || labels[9] != "MID0" || labels[20] != "OUT8" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
