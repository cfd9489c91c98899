package stage_test

import (
	"testing"
	"time"

	"github.com/expertec/ApiSuno-Cantalab-server/internal/stage"
)

func TestBackoffDoubles(t *testing.T) {
	base := 30 * time.Second
	max := 10 * time.Minute
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 8 * time.Minute},
		{6, 10 * time.Minute},
		{0, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := stage.Backoff(base, max, tc.attempt); got != tc.want {
			t.Fatalf("Backoff(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
	if got := stage.Backoff(0, max, 3); got != 0 {
		t.Fatalf("expected zero delay for zero base, got %s", got)
	}
}
