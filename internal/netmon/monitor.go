// Package netmon tracks whether the device currently has network
// connectivity. The sync engine consults it as a pre-flight gate; an
// offline verdict aborts the pass before any state is touched.
package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Connectivity reports the current network state.
type Connectivity interface {
	Connected() bool
}

// Static is a fixed-verdict Connectivity for tests.
type Static bool

func (s Static) Connected() bool { return bool(s) }

// Monitor probes a well-known address on an interval and caches the
// verdict. The cached value answers Connected without blocking, so the
// gate check is cheap even while a probe is in flight.
type Monitor struct {
	probeAddr    string
	interval     time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	connected atomic.Bool
	dial      func(ctx context.Context, addr string) error

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDialer replaces the TCP probe, for tests.
func WithDialer(dial func(ctx context.Context, addr string) error) Option {
	return func(m *Monitor) { m.dial = dial }
}

// New creates a Monitor probing addr every interval. The monitor starts
// pessimistic; the first probe runs on Start.
func New(addr string, interval, probeTimeout time.Duration, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		probeAddr:    addr,
		interval:     interval,
		probeTimeout: probeTimeout,
		logger:       logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	m.dial = m.dialTCP
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) dialTCP(ctx context.Context, addr string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Connected returns the last probe verdict.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Start probes immediately, then keeps probing on the interval until
// Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.probe(ctx)
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.dial(probeCtx, m.probeAddr)
	was := m.connected.Swap(err == nil)

	if m.logger != nil && was != (err == nil) {
		if err == nil {
			m.logger.Info("network reachable", "probe_addr", m.probeAddr)
		} else {
			m.logger.Info("network unreachable",
				"probe_addr", m.probeAddr,
				"error", err)
		}
	}
}

var _ Connectivity = (*Monitor)(nil)
