package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMonitor(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("StartsOnline", func(t *testing.T) {
		m := NewMonitor(time.Second, &logger)
		assert.True(t, m.Online())
	})

	t.Run("CheckFollowsProbes", func(t *testing.T) {
		m := NewMonitor(time.Second, &logger)
		var failing atomic.Bool
		m.AddProbe("db", func(context.Context) error {
			if failing.Load() {
				return errors.New("unreachable")
			}
			return nil
		})

		var seen []bool
		unsubscribe := m.Subscribe(func(online bool) { seen = append(seen, online) })
		defer unsubscribe()

		assert.True(t, m.Check(context.Background()))
		failing.Store(true)
		assert.False(t, m.Check(context.Background()))
		assert.False(t, m.Online())
		failing.Store(false)
		assert.True(t, m.Check(context.Background()))

		assert.Equal(t, []bool{true, false, true}, seen)
	})

	t.Run("PanickingProbeCountsAsOffline", func(t *testing.T) {
		m := NewMonitor(time.Second, &logger)
		m.AddProbe("bad", func(context.Context) error { panic("boom") })
		assert.False(t, m.Check(context.Background()))
	})

	t.Run("RunStopsOnCancel", func(t *testing.T) {
		m := NewMonitor(10*time.Millisecond, &logger)
		var calls atomic.Int32
		m.AddProbe("count", func(context.Context) error {
			calls.Add(1)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			m.Run(ctx)
			close(done)
		}()

		assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("monitor did not stop")
		}
	})
}
