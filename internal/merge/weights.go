package merge

import (
	"math"
	"strings"

	"github.com/goccy/go-json"
)

const (
	NumInputBlocks  = 9
	NumMiddleBlocks = 3
	NumOutputBlocks = 9

	// NumBlockWeights is the length of the weights_json array:
	// input blocks, then middle blocks, then output blocks.
	NumBlockWeights = NumInputBlocks + NumMiddleBlocks + NumOutputBlocks

	// FullWeight is the percentage that takes a parameter entirely from model B.
	FullWeight = 100
)

// DefaultWeightsJSON is the weights_json value meaning "all of model B".
var DefaultWeightsJSON = "[" + strings.TrimSuffix(strings.Repeat("100,", NumBlockWeights), ",") + "]"

// Params are the merge inputs as percentages (0 keeps model A, 100 takes model B).
type Params struct {
	TimeEmbed int
	LabelEmb  int
	Out       int
	// Weights holds NumBlockWeights entries in input, middle, output order.
	Weights []float64
}

// Options tune validation and key selection.
type Options struct {
	// Namespace is stripped from patch keys before region lookup. Keys outside it are left alone.
	Namespace string
	// AllowExtrapolation accepts percentages outside [0,100]; the resulting
	// ratios leave [0,1] and the host extrapolates instead of blending.
	AllowExtrapolation bool
}

// DefaultNamespace is the diffusion-model subtree of a checkpoint.
const DefaultNamespace = "diffusion_model."

func DefaultOptions() Options {
	return Options{Namespace: DefaultNamespace}
}

// FallbackWeights returns NumBlockWeights copies of FullWeight.
func FallbackWeights() []float64 {
	w := make([]float64, NumBlockWeights)
	for i := range w {
		w[i] = FullWeight
	}
	return w
}

// ParseWeights decodes a weights_json payload. Malformed JSON or anything other
// than an array of numbers yields FallbackWeights and fellBack=true. The length
// is not checked here; ValidateParams does that.
func ParseWeights(s string) (weights []float64, fellBack bool) {
	var raw []float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil || raw == nil {
		return FallbackWeights(), true
	}
	return raw, false
}

// ParseParams builds Params from the node inputs, applying the weights_json fallback.
func ParseParams(timeEmbed, labelEmb, out int, weightsJSON string) (Params, bool) {
	w, fellBack := ParseWeights(weightsJSON)
	return Params{TimeEmbed: timeEmbed, LabelEmb: labelEmb, Out: out, Weights: w}, fellBack
}

// DefaultParams is every input at FullWeight.
func DefaultParams() Params {
	return Params{TimeEmbed: FullWeight, LabelEmb: FullWeight, Out: FullWeight, Weights: FallbackWeights()}
}

// ValidateParams rejects parameter sets before any model is touched.
func ValidateParams(p Params, opts Options) error {
	if len(p.Weights) != NumBlockWeights {
		return configError("weights", ErrWeightCount, "got %d values, want %d", len(p.Weights), NumBlockWeights)
	}
	check := func(field string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return configError(field, ErrWeightRange, "%v is not finite", v)
		}
		if !opts.AllowExtrapolation && (v < 0 || v > FullWeight) {
			return configError(field, ErrWeightRange, "%v outside [0,%d]", v, FullWeight)
		}
		return nil
	}
	if err := check("time_embed", float64(p.TimeEmbed)); err != nil {
		return err
	}
	if err := check("label_emb", float64(p.LabelEmb)); err != nil {
		return err
	}
	if err := check("out", float64(p.Out)); err != nil {
		return err
	}
	for i, v := range p.Weights {
		if err := check(BlockLabel(i), v); err != nil {
			return err
		}
	}
	return nil
}
