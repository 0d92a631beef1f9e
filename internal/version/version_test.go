package version

import (
	"runtime/debug"
	"testing"
)

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = prev })
}

func withLDFlags(t *testing.T, v, commit, built string) {
	t.Helper()
	pv, pc, pb := Version, Commit, BuildTime
	Version, Commit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, Commit, BuildTime = pv, pc, pb })
}

func TestResolveLDFlagsWin(t *testing.T) {
	withLDFlags(t, "v1.2.0", "abc", "2026-01-01")
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.0.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "def"},
		},
	})

	info := Resolve()
	if info.Version != "v1.2.0" || info.Commit != "abc" || info.BuildTime != "2026-01-01" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestResolveBuildInfoFallback(t *testing.T) {
	withLDFlags(t, "", "", "")
	withBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T00:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	info := Resolve()
	if info.Version != devel {
		t.Fatalf("version: got %q want %q", info.Version, devel)
	}
	if info.BuildTime != "2026-10-01T00:00:00Z" {
		t.Fatalf("build time: got %q", info.BuildTime)
	}
	if got, want := String(), "devel (0123456789ab+dirty)"; got != want {
		t.Fatalf("String: got %q want %q", got, want)
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	withLDFlags(t, "", "", "")
	withBuildInfo(t, nil)

	if got := String(); got != devel {
		t.Fatalf("String: got %q want %q", got, devel)
	}
}
