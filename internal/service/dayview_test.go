package service

import (
	"context"
	"errors"
	"testing"

	"agenda/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayViewUndo(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("FailedCreateKeepsOtherPendingBooking", func(t *testing.T) {
		views := NewDayViews(setupDB(t))
		cell := views.Cell(testDate)
		mine := models.NewBooking(7, testDate, "09:00")
		other := models.NewBooking(8, testDate, "10:00")

		err := cell.Update(ctx,
			func(d DayView) DayView { return d.withBooking(mine) },
			func(d DayView) DayView { return d.withoutBooking(mine) },
			func(context.Context) error {
				require.NoError(t, cell.Update(ctx,
					func(d DayView) DayView { return d.withBooking(other) },
					func(d DayView) DayView { return d.withoutBooking(other) },
					func(context.Context) error { return nil }))
				return boom
			})

		assert.ErrorIs(t, err, boom)
		got := cell.Get().Bookings
		require.Len(t, got, 1)
		assert.Same(t, other, got[0])
	})

	t.Run("SwapBookingRestoresPrevious", func(t *testing.T) {
		current := models.NewBooking(7, testDate, "09:00")
		current.ID = 1
		updated := *current
		updated.Attended = true

		view := DayView{Bookings: []*models.Booking{current}}.replaceBooking(&updated)
		require.True(t, view.Bookings[0].Attended)

		view = view.swapBooking(&updated, current)
		assert.Same(t, current, view.Bookings[0])
	})

	t.Run("DropBlockByIdentity", func(t *testing.T) {
		a := &models.Block{Date: testDate, Type: models.BlockFullDay}
		b := &models.Block{Date: testDate, Type: models.BlockFullDay}

		view := DayView{}.withBlock(a).withBlock(b).dropBlock(a)
		require.Len(t, view.Blocks, 1)
		assert.Same(t, b, view.Blocks[0])
	})
}
