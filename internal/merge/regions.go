package merge

import (
	"fmt"
	"slices"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultRatio applies to keys no region prefix matches.
const DefaultRatio = 1.0

// Region is one prefix of the table and the ratio of model B it takes.
type Region struct {
	Prefix string  `json:"prefix"`
	Ratio  float64 `json:"ratio"`
}

// RegionTable resolves a key to the region with the longest matching prefix.
// Declaration order is kept for display; lookups scan prefixes longest first.
type RegionTable struct {
	declared *orderedmap.OrderedMap[string, float64]
	byLength []Region
}

// NewRegionTable builds a table from regions in declaration order. Equal
// prefixes are rejected: two distinct prefixes of the same length cannot both
// match one key, so duplicates are the only ambiguous case.
func NewRegionTable(regions ...Region) (*RegionTable, error) {
	declared := orderedmap.New[string, float64](len(regions))
	for _, r := range regions {
		if _, dup := declared.Get(r.Prefix); dup {
			return nil, configError("regions", ErrDuplicateRegion, "prefix %q declared twice", r.Prefix)
		}
		declared.Set(r.Prefix, r.Ratio)
	}

	byLength := slices.Clone(regions)
	slices.SortStableFunc(byLength, func(a, b Region) int {
		return len(b.Prefix) - len(a.Prefix)
	})
	return &RegionTable{declared: declared, byLength: byLength}, nil
}

// Lookup returns the region whose prefix is the longest prefix of key.
// ok is false when nothing matches; the returned region then carries DefaultRatio.
func (t *RegionTable) Lookup(key string) (Region, bool) {
	for _, r := range t.byLength {
		if len(r.Prefix) <= len(key) && key[:len(r.Prefix)] == r.Prefix {
			return r, true
		}
	}
	return Region{Ratio: DefaultRatio}, false
}

// Ratio is Lookup without the match flag.
func (t *RegionTable) Ratio(key string) float64 {
	r, _ := t.Lookup(key)
	return r.Ratio
}

// Regions lists the table in declaration order.
func (t *RegionTable) Regions() []Region {
	out := make([]Region, 0, t.declared.Len())
	for pair := t.declared.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Region{Prefix: pair.Key, Ratio: pair.Value})
	}
	return out
}

func (t *RegionTable) Len() int { return t.declared.Len() }

// BuildTable lays out the fixed region table for p: time_embed., label_emb.,
// input_blocks.0-8, middle_block.0-2, output_blocks.0-8, out. Percentages are
// divided by 100. p is not validated; call ValidateParams first.
func BuildTable(p Params) (*RegionTable, error) {
	if len(p.Weights) < NumBlockWeights {
		return nil, configError("weights", ErrWeightCount, "got %d values, want %d", len(p.Weights), NumBlockWeights)
	}
	regions := make([]Region, 0, NumBlockWeights+3)
	regions = append(regions,
		Region{"time_embed.", ratio(float64(p.TimeEmbed))},
		Region{"label_emb.", ratio(float64(p.LabelEmb))},
	)
	for i := range NumBlockWeights {
		regions = append(regions, Region{BlockPrefix(i), ratio(p.Weights[i])})
	}
	regions = append(regions, Region{"out.", ratio(float64(p.Out))})
	return NewRegionTable(regions...)
}

func ratio(percent float64) float64 {
	return percent / FullWeight
}

// BlockPrefix returns the parameter prefix of block weight i.
func BlockPrefix(i int) string {
	switch {
	case i < NumInputBlocks:
		return "input_blocks." + strconv.Itoa(i)
	case i < NumInputBlocks+NumMiddleBlocks:
		return "middle_block." + strconv.Itoa(i-NumInputBlocks)
	default:
		return "output_blocks." + strconv.Itoa(i-NumInputBlocks-NumMiddleBlocks)
	}
}

// BlockLabel is the short name of block weight i (IN0..IN8, MID0..MID2, OUT0..OUT8).
func BlockLabel(i int) string {
	switch {
	case i < 0 || i >= NumBlockWeights:
		return fmt.Sprintf("weights[%d]", i)
	case i < NumInputBlocks:
		return "IN" + strconv.Itoa(i)
	case i < NumInputBlocks+NumMiddleBlocks:
		return "MID" + strconv.Itoa(i-NumInputBlocks)
	default:
		return "OUT" + strconv.Itoa(i-NumInputBlocks-NumMiddleBlocks)
	}
}
