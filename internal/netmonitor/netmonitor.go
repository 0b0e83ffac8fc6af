// Package netmonitor implements the network monitor: a single-threaded
// event source that emits online/offline transitions and triggers one
// drain attempt per falling→rising edge.
package netmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/inkwell-app/notesync-core/internal/eventbus"
	"github.com/rs/zerolog"
)

// Prober reports whether the remote API is currently reachable. In
// production this is an HTTP probe against the configured base URL; tests
// substitute a fake.
type Prober func(ctx context.Context) bool

// Monitor owns the single process-wide "am I online" flag: one writer
// (this type), many readers via Snapshot.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	probe  Prober
	events *eventbus.Bus
	log    zerolog.Logger

	interval time.Duration
}

// New builds a Monitor. Initial state defaults to optimistic "true" until
// the first probe runs.
func New(probe Prober, events *eventbus.Bus, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		online:   true,
		probe:    probe,
		events:   events,
		interval: interval,
		log:      log.With().Str("component", "netmonitor").Logger(),
	}
}

// Snapshot returns the last-known online state without blocking on a
// probe.
func (m *Monitor) Snapshot() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Run performs one synchronous startup probe, then polls at the
// configured interval until ctx is cancelled, publishing net.online on
// every edge. This is the monitor's single goroutine; nothing else in the
// engine writes m.online.
func (m *Monitor) Run(ctx context.Context) {
	m.setAndPublish(m.probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.setAndPublish(m.probe(ctx))
		}
	}
}

func (m *Monitor) setAndPublish(online bool) {
	m.mu.Lock()
	changed := online != m.online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.log.Info().Bool("online", online).Msg("connectivity transition")
	}
	// Every probe republishes state (not only on change) so a fresh
	// subscriber always learns current state quickly; the driver only
	// acts on the falling→rising edge itself, tracked by its caller.
	m.events.Publish(eventbus.TopicNetOnline, eventbus.NetOnlineEvent{Online: online})
}
