package netmon_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readingpal/readingpal/internal/netmon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	assert.True(t, netmon.Static(true).Connected())
	assert.False(t, netmon.Static(false).Connected())
}

func TestMonitorStartsPessimistic(t *testing.T) {
	m := netmon.New("127.0.0.1:1", time.Minute, time.Second, nil)
	assert.False(t, m.Connected())
}

func TestMonitorProbeVerdict(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	m := netmon.New("probe:443", 10*time.Millisecond, time.Second, nil,
		netmon.WithDialer(func(ctx context.Context, addr string) error {
			if online.Load() {
				return nil
			}
			return errors.New("unreachable")
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	defer m.Stop()

	// First probe runs synchronously in Start.
	assert.True(t, m.Connected())

	online.Store(false)
	require.Eventually(t, func() bool { return !m.Connected() },
		time.Second, 5*time.Millisecond)

	online.Store(true)
	require.Eventually(t, func() bool { return m.Connected() },
		time.Second, 5*time.Millisecond)
}

func TestMonitorStopIdempotent(t *testing.T) {
	m := netmon.New("probe:443", time.Minute, time.Second, nil,
		netmon.WithDialer(func(ctx context.Context, addr string) error { return nil }))

	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
