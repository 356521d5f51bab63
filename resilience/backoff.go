package resilience

import (
	"math/rand"
	"time"
)

// MinBackoff is the floor applied to every computed delay.
const MinBackoff = 50 * time.Millisecond

// Backoff computes the delay before retry attempt+1:
// base·2^(attempt-1) plus uniform jitter in [-jitter, +jitter],
// clamped to at least MinBackoff. attempt is 1-based.
func Backoff(base, jitter time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := base * time.Duration(1<<uint(shift))

	if jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	}

	if delay < MinBackoff {
		delay = MinBackoff
	}
	return delay
}
