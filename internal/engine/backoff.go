package engine

import (
	"math/rand/v2"
	"time"

	"github.com/orbyt-dev/orbyt/internal/workflow"
)

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	jitterFraction    = 0.1
)

// backoffDelay computes the sleep before retrying after failed attempt n
// (1-based): linear grows as delay*n, exponential as delay*2^(n-1). The
// result is capped at 30s and jittered by ±10% so retry storms desynchronize.
func backoffDelay(strategy string, base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = defaultRetryDelay
	}
	if attempt < 1 {
		attempt = 1
	}

	var d time.Duration
	switch strategy {
	case workflow.BackoffExponential:
		d = base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxRetryDelay {
				break
			}
		}
	default:
		d = base * time.Duration(attempt)
	}
	if d > maxRetryDelay {
		d = maxRetryDelay
	}

	jitter := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(d))
	return d + jitter
}

// sleepOrCancel waits d, returning early with the context error if the
// workflow is cancelled between attempts.
func sleepOrCancel(done <-chan struct{}, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return errCancelledBetweenRetries
	case <-timer.C:
		return nil
	}
}
