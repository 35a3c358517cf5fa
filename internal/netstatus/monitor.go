// Package netstatus tracks whether the remote backend is reachable.
//
// The monitor answers two questions for the sync layer: "are we online
// right now?" and "when did we come back online?". The second is delivered
// as a signal fired exactly once per offline-to-online transition, which
// the reconciliation daemon uses to kick a replay.
package netstatus

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Pinger is the probe used to decide reachability. Implemented by the
// remote gateway.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the read-only view the sync engine consumes.
type Status interface {
	Online() bool
}

// Monitor tracks connectivity and fans out offline-to-online transitions.
//
// A Monitor starts offline and becomes online after the first successful
// probe. Run drives periodic probes; CheckNow performs a single probe for
// short-lived CLI invocations that don't run the loop.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	online bool
	forced bool // pinned offline regardless of probe results
	subs   []chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval used by Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithLogger sets the monitor's logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// ForceOffline pins the monitor offline. Probes still run but cannot flip
// the state until the pin is released with SetOnline or a new Monitor.
func ForceOffline() Option {
	return func(m *Monitor) { m.forced = true }
}

// New creates a Monitor probing through p. If logger is nil, a default
// logger writing to stderr is used.
func New(p Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		pinger:   p,
		interval: 15 * time.Second,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(os.Stderr, "[netstatus] ", log.LstdFlags)
	}
	return m
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that receives one value per
// offline-to-online transition. The channel is buffered; a slow consumer
// misses coalesced transitions rather than blocking the monitor.
func (m *Monitor) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// SetOnline overrides the connectivity state directly. A transition to
// online fires subscribers exactly as a probe result would. Used by tests
// and by forced-offline mode teardown.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	m.forced = false
	wasOnline := m.online
	m.online = online
	var subs []chan struct{}
	if online && !wasOnline {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if online && !wasOnline {
		m.logger.Printf("Connectivity restored")
		notify(subs)
	} else if !online && wasOnline {
		m.logger.Printf("Connectivity lost")
	}
}

// CheckNow performs a single probe and updates the state. Returns the
// resulting online flag.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.mu.Lock()
	forced := m.forced
	m.mu.Unlock()
	if forced {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	m.apply(err == nil)
	return err == nil
}

// Run probes at the configured interval until ctx is cancelled. An
// immediate probe runs before the first tick.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// apply records a probe result, firing subscribers on the offline-to-online
// edge only.
func (m *Monitor) apply(online bool) {
	m.mu.Lock()
	if m.forced {
		m.mu.Unlock()
		return
	}
	wasOnline := m.online
	m.online = online
	var subs []chan struct{}
	if online && !wasOnline {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if online && !wasOnline {
		m.logger.Printf("Connectivity restored")
		notify(subs)
	} else if !online && wasOnline {
		m.logger.Printf("Connectivity lost")
	}
}

func notify(subs []chan struct{}) {
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
