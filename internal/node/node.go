// Package node describes the merge operation to a node-graph host: its
// inputs, outputs, display name and the front-end assets that edit it.
package node

import (
	"fmt"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/samcharles93/blockmerge/internal/merge"
)

// Input types understood by the host.
const (
	TypeModel  = "MODEL"
	TypeInt    = "INT"
	TypeString = "STRING"
)

// Input is one declared input. Slider bounds are set for INT inputs only.
type Input struct {
	Name      string
	Type      string
	Default   any
	Min       *int
	Max       *int
	Step      *int
	Multiline bool
}

func (in Input) options() map[string]any {
	opts := map[string]any{}
	if in.Default != nil {
		opts["default"] = in.Default
	}
	if in.Min != nil {
		opts["min"] = *in.Min
	}
	if in.Max != nil {
		opts["max"] = *in.Max
	}
	if in.Step != nil {
		opts["step"] = *in.Step
	}
	if in.Type == TypeString {
		opts["multiline"] = in.Multiline
	}
	return opts
}

// MarshalJSON renders the host's [type] or [type, options] tuple.
func (in Input) MarshalJSON() ([]byte, error) {
	if opts := in.options(); len(opts) > 0 {
		return json.Marshal([]any{in.Type, opts})
	}
	return json.Marshal([]any{in.Type})
}

// Slider is an integer input bounded to [min,max].
func Slider(name string, def, lo, hi, step int) Input {
	return Input{Name: name, Type: TypeInt, Default: def, Min: &lo, Max: &hi, Step: &step}
}

// Definition declares one node class.
type Definition struct {
	Name        string
	DisplayName string
	Category    string
	Function    string
	Required    []Input
	Optional    []Input
	ReturnTypes []string
}

type inputGroups struct {
	Required *orderedmap.OrderedMap[string, Input] `json:"required"`
	Optional *orderedmap.OrderedMap[string, Input] `json:"optional,omitempty"`
}

type definitionJSON struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name"`
	Category    string      `json:"category"`
	Function    string      `json:"function"`
	Input       inputGroups `json:"input"`
	Output      []string    `json:"output"`
}

func (d Definition) MarshalJSON() ([]byte, error) {
	groups := inputGroups{Required: ordered(d.Required)}
	if len(d.Optional) > 0 {
		groups.Optional = ordered(d.Optional)
	}
	return json.Marshal(definitionJSON{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Category:    d.Category,
		Function:    d.Function,
		Input:       groups,
		Output:      d.ReturnTypes,
	})
}

func ordered(inputs []Input) *orderedmap.OrderedMap[string, Input] {
	om := orderedmap.New[string, Input](len(inputs))
	for _, in := range inputs {
		om.Set(in.Name, in)
	}
	return om
}

// VisualModelMerge is the block-weighted merge node.
func VisualModelMerge() Definition {
	return Definition{
		Name:        "VisualModelMergeSDXL",
		DisplayName: "Visual Model Merge SDXL",
		Category:    "advanced/model_merging/visual",
		Function:    "merge",
		Required: []Input{
			{Name: "model1", Type: TypeModel},
			{Name: "model2", Type: TypeModel},
			Slider("time_embed", merge.FullWeight, 0, merge.FullWeight, 1),
			Slider("label_emb", merge.FullWeight, 0, merge.FullWeight, 1),
			Slider("out", merge.FullWeight, 0, merge.FullWeight, 1),
		},
		Optional: []Input{
			{Name: "weights_json", Type: TypeString, Default: merge.DefaultWeightsJSON},
		},
		ReturnTypes: []string{TypeModel},
	}
}

// WebDirectory is where the registry's front-end assets are served from.
const WebDirectory = "/extensions/blockmerge/"

// Registry maps node names to definitions in registration order.
type Registry struct {
	nodes *orderedmap.OrderedMap[string, Definition]
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{nodes: orderedmap.New[string, Definition]()}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds the nodes this module implements.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(VisualModelMerge())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(d Definition) error {
	if d.Name == "" {
		return fmt.Errorf("node definition without a name")
	}
	if _, dup := r.nodes.Get(d.Name); dup {
		return fmt.Errorf("node %q already registered", d.Name)
	}
	r.nodes.Set(d.Name, d)
	return nil
}

func (r *Registry) Get(name string) (Definition, bool) {
	return r.nodes.Get(name)
}

// Names lists registered nodes in registration order.
func (r *Registry) Names() []string {
	out := make([]string, 0, r.nodes.Len())
	for p := r.nodes.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// DisplayNames maps node names to their human-readable names.
func (r *Registry) DisplayNames() map[string]string {
	out := make(map[string]string, r.nodes.Len())
	for p := r.nodes.Oldest(); p != nil; p = p.Next() {
		out[p.Key] = p.Value.DisplayName
	}
	return out
}

// MarshalJSON renders the registry as an object keyed by node name.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.nodes)
}
