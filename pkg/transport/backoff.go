package transport

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newReconnectBackoff builds the reconnect schedule: base, 2*base, 4*base...
// capped at max, with no jitter so the delays stay deterministic.
func newReconnectBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
