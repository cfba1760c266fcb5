package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func without(v []string, drop string) []string {
	out := make([]string, 0, len(v))
	for _, s := range v {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

func with(v []string, add string) []string {
	return append(append([]string(nil), v...), add)
}

func TestCellUpdate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("remote down")

	t.Run("KeepsValueOnSuccess", func(t *testing.T) {
		c := NewCell([]string{"a"})
		err := c.Update(ctx, func(v []string) []string { return with(v, "b") }, nil,
			func(context.Context) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, c.Get())
	})

	t.Run("RestoresSnapshotOnFailure", func(t *testing.T) {
		c := NewCell(map[string]bool{"09:00": false})

		var during bool
		err := c.Update(ctx, func(v map[string]bool) map[string]bool {
			next := map[string]bool{}
			for k, val := range v {
				next[k] = val
			}
			next["09:00"] = true
			return next
		}, nil, func(context.Context) error {
			during = c.Get()["09:00"]
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.True(t, during)
		assert.False(t, c.Get()["09:00"])
	})

	t.Run("UndoKeepsConcurrentWrites", func(t *testing.T) {
		c := NewCell([]string{"a"})

		err := c.Update(ctx,
			func(v []string) []string { return with(v, "b") },
			func(v []string) []string { return without(v, "b") },
			func(context.Context) error {
				// другой запрос успел записать тот же день
				inner := c.Update(ctx, func(v []string) []string { return with(v, "c") }, nil,
					func(context.Context) error { return nil })
				require.NoError(t, inner)
				return boom
			})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"a", "c"}, c.Get())
	})

	t.Run("SnapshotNotRestoredOverNewerWrite", func(t *testing.T) {
		c := NewCell(1)

		err := c.Update(ctx, func(v int) int { return v + 1 }, nil, func(context.Context) error {
			c.Set(10)
			return boom
		})

		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 10, c.Get())
	})

	t.Run("Set", func(t *testing.T) {
		c := NewCell(1)
		c.Set(2)
		assert.Equal(t, 2, c.Get())
	})
}
