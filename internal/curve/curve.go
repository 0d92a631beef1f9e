// Package curve models the per-block weight curve edited in the merge UI:
// one 0-100 point per input, middle and output block, serialised as the
// weights_json merge input.
package curve

import (
	"fmt"
	"math"

	"github.com/goccy/go-json"

	"github.com/samcharles93/blockmerge/internal/merge"
)

// Points is the number of curve points, one per block weight.
const Points = merge.NumBlockWeights

const (
	minValue = 0
	maxValue = merge.FullWeight
)

type Section string

const (
	SectionIn  Section = "In"
	SectionMid Section = "Mid"
	SectionOut Section = "Out"
)

// SectionOf reports which block group point i belongs to.
func SectionOf(i int) Section {
	switch {
	case i < merge.NumInputBlocks:
		return SectionIn
	case i < merge.NumInputBlocks+merge.NumMiddleBlocks:
		return SectionMid
	default:
		return SectionOut
	}
}

// Labels returns IN0..IN8, MID0..MID2, OUT0..OUT8.
func Labels() []string {
	out := make([]string, Points)
	for i := range out {
		out[i] = merge.BlockLabel(i)
	}
	return out
}

// Curve holds the point values. The zero value is all zeros; use New for the all-100 default.
type Curve struct {
	values [Points]float64
}

func New() *Curve {
	c := &Curve{}
	c.Reset()
	return c
}

// Load replaces the curve with weightsJSON when it is an array of exactly
// Points numbers, rounding and clamping each value. Anything else leaves the
// curve unchanged and reports false.
func (c *Curve) Load(weightsJSON string) bool {
	var raw []float64
	if err := json.Unmarshal([]byte(weightsJSON), &raw); err != nil || len(raw) != Points {
		return false
	}
	for i, v := range raw {
		c.values[i] = clamp(math.Round(v))
	}
	return true
}

func (c *Curve) Reset() {
	for i := range c.values {
		c.values[i] = maxValue
	}
}

func (c *Curve) Value(i int) float64 { return c.values[i] }

// Values returns a copy of the points.
func (c *Curve) Values() []float64 {
	return append([]float64(nil), c.values[:]...)
}

// Set assigns point i, clamped to [0,100].
func (c *Curve) Set(i int, v float64) error {
	if i < 0 || i >= Points {
		return fmt.Errorf("curve point %d out of range [0,%d)", i, Points)
	}
	c.values[i] = clamp(v)
	return nil
}

// ApplyLocalDelta moves point center by delta and its neighbours by a
// gaussian-weighted share of it. radius widens the falloff.
func (c *Curve) ApplyLocalDelta(center int, delta float64, radius int) error {
	if center < 0 || center >= Points {
		return fmt.Errorf("curve point %d out of range [0,%d)", center, Points)
	}
	sigma := math.Max(0.6, float64(radius)/1.8)
	denom := 2 * sigma * sigma
	for i := range c.values {
		d := float64(i - center)
		c.values[i] = clamp(c.values[i] + delta*math.Exp(-(d*d)/denom))
	}
	return nil
}

// Snap rounds every point to an integer.
func (c *Curve) Snap() {
	for i, v := range c.values {
		c.values[i] = clamp(math.Round(v))
	}
}

// JSON renders the snapped points as a weights_json payload.
func (c *Curve) JSON() string {
	ints := make([]int, Points)
	for i, v := range c.values {
		ints[i] = int(clamp(math.Round(v)))
	}
	b, _ := json.Marshal(ints)
	return string(b)
}

func clamp(v float64) float64 {
	return math.Max(minValue, math.Min(maxValue, v))
}
