package main

import (
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/blockmerge/internal/merge"
)

func TestParseBlockEdit(t *testing.T) {
	cases := []struct {
		in      string
		idx     int
		val     float64
		wantErr bool
	}{
		{in: "IN0=30", idx: 0, val: 30},
		{in: "mid1=-20", idx: 10, val: -20},
		{in: " OUT8 = 75 ", idx: 20, val: 75},
		{in: "4=12.5", idx: 4, val: 12.5},
		{in: "IN9=1", wantErr: true},
		{in: "21=1", wantErr: true},
		{in: "IN0", wantErr: true},
		{in: "IN0=abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			idx, val, err := parseBlockEdit(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBlockEdit returned error: %v", err)
			}
			if idx != tc.idx || val != tc.val {
				t.Fatalf("got (%d, %v) want (%d, %v)", idx, val, tc.idx, tc.val)
			}
		})
	}
}

func TestBuildCurve(t *testing.T) {
	t.Run("defaults to all 100", func(t *testing.T) {
		c, err := buildCurve("", nil, nil, 2)
		if err != nil {
			t.Fatalf("buildCurve returned error: %v", err)
		}
		if got := c.JSON(); got != merge.DefaultWeightsJSON {
			t.Fatalf("got %s want %s", got, merge.DefaultWeightsJSON)
		}
	})

	t.Run("set clamps", func(t *testing.T) {
		c, err := buildCurve("", []string{"IN0=0", "OUT8=150"}, nil, 2)
		if err != nil {
			t.Fatalf("buildCurve returned error: %v", err)
		}
		if c.Value(0) != 0 || c.Value(20) != 100 {
			t.Fatalf("unexpected values: %v", c.Values())
		}
	})

	t.Run("bump moves neighbours less", func(t *testing.T) {
		c, err := buildCurve("", nil, []string{"MID1=-40"}, 2)
		if err != nil {
			t.Fatalf("buildCurve returned error: %v", err)
		}
		center, near, far := c.Value(10), c.Value(9), c.Value(0)
		if center != 60 {
			t.Fatalf("center: got %v want 60", center)
		}
		if near <= center || near >= 100 {
			t.Fatalf("neighbour should move partially, got %v", near)
		}
		if far != 100 {
			t.Fatalf("distant point should not move, got %v", far)
		}
	})

	t.Run("starts from given weights", func(t *testing.T) {
		start := "[0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0]"
		c, err := buildCurve(start, []string{"IN4=50"}, nil, 2)
		if err != nil {
			t.Fatalf("buildCurve returned error: %v", err)
		}
		want := make([]float64, 21)
		want[4] = 50
		if diff := cmp.Diff(want, c.Values()); diff != "" {
			t.Fatalf("values (-want +got):\n%s", diff)
		}
	})

	t.Run("bad edit", func(t *testing.T) {
		if _, err := buildCurve("", []string{"X=1"}, nil, 2); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestParseMeta(t *testing.T) {
	got, err := parseMeta([]string{"author=me", " note = a=b"})
	if err != nil {
		t.Fatalf("parseMeta returned error: %v", err)
	}
	want := map[string]string{"author": "me", "note": " a=b"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("meta (-want +got):\n%s", diff)
	}
	if _, err := parseMeta([]string{"novalue"}); err == nil {
		t.Fatalf("expected error for missing =")
	}
	if m, err := parseMeta(nil); err != nil || m != nil {
		t.Fatalf("nil input: got %v, %v", m, err)
	}
}

func TestRegionRowsLabels(t *testing.T) {
	table, err := merge.BuildTable(merge.DefaultParams())
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	rows := regionRows(table)
	if len(rows) != merge.NumBlockWeights+3 {
		t.Fatalf("row count: got %d", len(rows))
	}
	if rows[0][0] != "time_embed." || rows[0][1] != "" {
		t.Fatalf("first row: %v", rows[0])
	}
	if rows[2][1] != "IN0" || rows[13][1] != "MID2" || rows[23][0] != "out." {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestRenderTable(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "table")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	renderTable(f, []string{"REGION", "RATIO"}, [][]string{{"input_blocks.0", "0.5"}})
	_ = f.Close()
	out, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(out), "REGION") || !strings.Contains(string(out), "input_blocks.0") {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}
