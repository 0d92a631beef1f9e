// Package merge blends two models key by key using per-region ratios.
//
// A region table maps parameter-name prefixes (time_embed., input_blocks.3,
// out., ...) to a ratio in [0,1]. Every patch key that model B exposes under
// the namespace is looked up by longest matching prefix and applied to a clone
// of model A with weights (1-ratio, ratio), so the result is
// (1-ratio)*A + ratio*B per parameter. Keys no region matches take ratio 1.
//
// The tensor arithmetic belongs to the host runtime behind the Model interface.
package merge
