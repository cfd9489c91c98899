package main

import (
	"strings"
	"testing"
)

func TestColorStatusSeverity(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"error-lyric", ansiRed},
		{"failed", ansiRed},
		{"sent", ansiGreen},
		{"no-music", ansiYellow},
		{"processing", ansiYellow},
	}
	for _, tc := range cases {
		if got := colorStatus(tc.status); !strings.Contains(got, tc.want) {
			t.Errorf("colorStatus(%q) = %q, expected it to carry %q", tc.status, got, tc.want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(
		[]tableColumn{
			{header: "ID"},
			{header: "Status", status: true},
			{header: "Attempts", numeric: true},
		},
		[][]string{{"req-1", "no-lyric"}},
	)
	for _, want := range []string{"ID", "Status", "Attempts", "req-1", "no-lyric"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected rendered table to contain %q, got:\n%s", want, out)
		}
	}
}
