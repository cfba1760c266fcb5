// Package connectivity tracks whether the remote stores are reachable.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agenda/internal/observe"

	"github.com/rs/zerolog"
)

// Probe checks one remote dependency.
type Probe func(ctx context.Context) error

type namedProbe struct {
	name  string
	probe Probe
}

// Monitor is the process-wide connected/disconnected state.
type Monitor struct {
	state    *observe.Value[bool]
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger

	mu     sync.RWMutex
	probes []namedProbe
}

// NewMonitor starts in the connected state.
func NewMonitor(interval time.Duration, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Monitor{
		state:    observe.NewValue(true),
		interval: interval,
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// AddProbe registers a dependency that must answer for the monitor to be online.
func (m *Monitor) AddProbe(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, namedProbe{name: name, probe: probe})
}

func (m *Monitor) Online() bool {
	return m.state.Get()
}

// Set forces the state, e.g. from tests or an operator toggle.
func (m *Monitor) Set(online bool) {
	if m.state.Set(online) {
		if online {
			m.logger.Info().Msg("connectivity restored")
		} else {
			m.logger.Warn().Msg("connectivity lost")
		}
	}
}

// Subscribe delivers the current state now and on every change.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	return m.state.Subscribe(fn)
}

// Check runs every probe once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	m.mu.RLock()
	probes := append([]namedProbe(nil), m.probes...)
	m.mu.RUnlock()

	online := true
	for _, p := range probes {
		if err := m.runProbe(ctx, p); err != nil {
			m.logger.Debug().Err(err).Str("probe", p.name).Msg("probe failed")
			online = false
			break
		}
	}
	m.Set(online)
	return online
}

func (m *Monitor) runProbe(ctx context.Context, p namedProbe) (err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe %s panicked: %v", p.name, r)
		}
	}()
	return p.probe(ctx)
}

// Run probes on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
