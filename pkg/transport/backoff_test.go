package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconnectBackoffSchedule(t *testing.T) {
	b := newReconnectBackoff(time.Second, 30*time.Second)

	// Delay for the Nth consecutive failure is min(1s * 2^(N-1), 30s); the
	// sixth attempt hits the cap instead of 32s.
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		require.Equal(t, w, b.NextBackOff(), "attempt %d", i+1)
	}
}

func TestReconnectBackoffResetsToBase(t *testing.T) {
	b := newReconnectBackoff(time.Second, 30*time.Second)
	for i := 0; i < 4; i++ {
		b.NextBackOff()
	}
	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())
}
