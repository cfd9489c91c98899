package stage

import "time"

// Backoff returns the delay before retry number attempt (1-based):
// base, base*2, base*4, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
