package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyTransition(t *testing.T) {
	at := time.Date(2025, 10, 20, 15, 4, 0, 0, time.UTC)
	open := Booking{ID: 7, UserID: 1, Date: time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), Time: "10:00", Status: StatusPending}

	t.Run("ClientCancel", func(t *testing.T) {
		got, err := ApplyTransition(open, Transition{Action: ActionClientCancel, At: at})
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, CancelledByClient, got.CancelledBy)
		assert.Empty(t, got.CancellationReason)
		require.NotNil(t, got.CancelledAt)
		assert.True(t, got.CancelledAt.Equal(at))
		assert.Equal(t, StatusPending, open.Status, "input must not be modified")
	})

	t.Run("ProviderCancelTrimsReason", func(t *testing.T) {
		got, err := ApplyTransition(open, Transition{Action: ActionProviderCancel, Reason: "  sick leave ", At: at})
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, got.Status)
		assert.Equal(t, CancelledByProvider, got.CancelledBy)
		assert.Equal(t, "sick leave", got.CancellationReason)
		assert.False(t, got.Attended)
	})

	t.Run("ProviderCancelBlankReason", func(t *testing.T) {
		_, err := ApplyTransition(open, Transition{Action: ActionProviderCancel, Reason: "   "})
		assert.ErrorIs(t, err, ErrReasonRequired)
	})

	t.Run("MarkAttended", func(t *testing.T) {
		got, err := ApplyTransition(open, Transition{Action: ActionMarkAttended})
		require.NoError(t, err)
		assert.True(t, got.Attended)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, StateAttended, StateOf(&got))
	})

	t.Run("TerminalStatesReject", func(t *testing.T) {
		cancelled := open
		cancelled.Status = StatusCancelled
		attended := open
		attended.Attended = true

		for _, b := range []Booking{cancelled, attended} {
			for _, action := range []Action{ActionClientCancel, ActionProviderCancel, ActionMarkAttended} {
				_, err := ApplyTransition(b, Transition{Action: action, Reason: "reason"})
				var terr *TransitionError
				require.True(t, errors.As(err, &terr), "action %s from %s", action, StateOf(&b))
				assert.Equal(t, StateOf(&b), terr.From)
				assert.Equal(t, action, terr.Action)
			}
		}
	})

	t.Run("DoubleCancelRejected", func(t *testing.T) {
		once, err := ApplyTransition(open, Transition{Action: ActionClientCancel, At: at})
		require.NoError(t, err)
		_, err = ApplyTransition(once, Transition{Action: ActionClientCancel, At: at.Add(time.Hour)})
		var terr *TransitionError
		assert.True(t, errors.As(err, &terr))
	})
}

func TestDateHelpers(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)

	t.Run("DateOfUsesOwnLocation", func(t *testing.T) {
		late := time.Date(2025, 3, 1, 23, 30, 0, 0, loc)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), DateOf(late))
	})

	t.Run("ParseDate", func(t *testing.T) {
		d, err := ParseDate(" 2025-10-23 ")
		require.NoError(t, err)
		assert.Equal(t, 23, d.Day())

		_, err = ParseDate("23/10/2025")
		assert.Error(t, err)
	})

	t.Run("ClockLabel", func(t *testing.T) {
		assert.Equal(t, "09:05", ClockLabel(time.Date(2025, 1, 1, 9, 5, 59, 0, time.UTC)))
	})
}

func TestBookingOrdering(t *testing.T) {
	d1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)

	a := &Booking{Date: d1, Time: "17:00"}
	b := &Booking{Date: d2, Time: "09:00"}
	c := &Booking{Date: d2, Time: "10:00"}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(b))
}

func TestBlockMatches(t *testing.T) {
	full := &Block{Type: BlockFullDay}
	single := &Block{Type: BlockSingleSlot, Time: "14:00"}

	assert.True(t, full.Matches(BlockFullDay, ""))
	assert.True(t, full.Matches(BlockFullDay, "09:00"))
	assert.False(t, full.Matches(BlockSingleSlot, ""))
	assert.True(t, single.Matches(BlockSingleSlot, "14:00"))
	assert.False(t, single.Matches(BlockSingleSlot, "15:00"))
}
