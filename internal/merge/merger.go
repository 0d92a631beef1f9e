package merge

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/samcharles93/blockmerge/internal/logger"
)

// Assignment records which region a key resolved to.
type Assignment struct {
	Key      string  `json:"key"`
	Stripped string  `json:"stripped"`
	Region   string  `json:"region,omitempty"`
	Ratio    float64 `json:"ratio"`
	Matched  bool    `json:"matched"`
}

// Report summarises a merge.
type Report struct {
	Keys      int            `json:"keys"`
	Unmatched int            `json:"unmatched"`
	PerRegion map[string]int `json:"per_region"`
	// FellBack is set when weights_json could not be decoded and all block weights became 100.
	FellBack bool `json:"fell_back,omitempty"`
}

// Plan resolves every key under namespace against table, sorted by key.
// Keys outside namespace are omitted.
func Plan(keys []string, namespace string, table *RegionTable) []Assignment {
	out := make([]Assignment, 0, len(keys))
	for _, k := range keys {
		stripped, ok := strings.CutPrefix(k, namespace)
		if !ok {
			continue
		}
		r, matched := table.Lookup(stripped)
		out = append(out, Assignment{
			Key:      k,
			Stripped: stripped,
			Region:   r.Prefix,
			Ratio:    r.Ratio,
			Matched:  matched,
		})
	}
	slices.SortFunc(out, func(a, b Assignment) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Merger applies region-weighted merges. It holds no state between calls.
type Merger struct {
	opts Options
	log  logger.Logger
}

// NewMerger fills an empty namespace with DefaultNamespace and a nil log with a discarding one.
func NewMerger(opts Options, log logger.Logger) *Merger {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Merger{opts: opts, log: log}
}

func (m *Merger) Options() Options { return m.opts }

// Table validates p and builds its region table.
func (m *Merger) Table(p Params) (*RegionTable, error) {
	if err := ValidateParams(p, m.opts); err != nil {
		return nil, err
	}
	return BuildTable(p)
}

// Merge returns a clone of a with every namespaced patch of b blended in at its
// region's ratio. Neither a nor b is modified. On error no model is returned.
func (m *Merger) Merge(ctx context.Context, a, b Model, p Params) (Model, Report, error) {
	table, err := m.Table(p)
	if err != nil {
		return nil, Report{}, err
	}
	m.log.Debug("region table built", "regions", table.Len(), "namespace", m.opts.Namespace)

	merged, err := a.Clone()
	if err != nil {
		return nil, Report{}, fmt.Errorf("clone base model: %w", err)
	}
	patches, err := b.PatchesFor(m.opts.Namespace)
	if err != nil {
		return nil, Report{}, fmt.Errorf("collect patches: %w", err)
	}

	report := Report{PerRegion: make(map[string]int, table.Len())}
	for _, as := range Plan(slices.Collect(maps.Keys(patches)), m.opts.Namespace, table) {
		if err := ctx.Err(); err != nil {
			return nil, Report{}, err
		}
		single := map[string]Patch{as.Key: patches[as.Key]}
		if err := merged.ApplyPatches(single, 1-as.Ratio, as.Ratio); err != nil {
			return nil, Report{}, fmt.Errorf("apply %s: %w", as.Key, err)
		}
		report.Keys++
		if as.Matched {
			report.PerRegion[as.Region]++
		} else {
			report.Unmatched++
		}
	}
	if skipped := len(patches) - report.Keys; skipped > 0 {
		m.log.Warn("patches outside namespace ignored", "count", skipped, "namespace", m.opts.Namespace)
	}
	m.log.Info("merge applied", "keys", report.Keys, "unmatched", report.Unmatched)
	return merged, report, nil
}

// MergeJSON is Merge driven by the raw node inputs. A malformed weightsJSON
// falls back to all block weights at 100 and is flagged in the report.
func (m *Merger) MergeJSON(ctx context.Context, a, b Model, timeEmbed, labelEmb, out int, weightsJSON string) (Model, Report, error) {
	p, fellBack := ParseParams(timeEmbed, labelEmb, out, weightsJSON)
	if fellBack {
		m.log.Warn("weights_json unreadable, using full weights", "value", weightsJSON)
	}
	merged, report, err := m.Merge(ctx, a, b, p)
	report.FellBack = fellBack
	return merged, report, err
}
