package service

import (
	"context"
	"sync"
	"time"

	"agenda/internal/domain"
	"agenda/internal/models"
	"agenda/internal/optimistic"
)

// DayView is the locally loaded bookings and blocks of one date.
type DayView struct {
	Bookings []*models.Booking
	Blocks   []*models.Block
	Loaded   bool
}

func (d DayView) withBooking(b *models.Booking) DayView {
	bookings := make([]*models.Booking, 0, len(d.Bookings)+1)
	bookings = append(bookings, d.Bookings...)
	d.Bookings = append(bookings, b)
	return d
}

// withoutBooking drops exactly b, matched by pointer since unsaved bookings have no id yet.
func (d DayView) withoutBooking(b *models.Booking) DayView {
	bookings := make([]*models.Booking, 0, len(d.Bookings))
	for _, cur := range d.Bookings {
		if cur != b {
			bookings = append(bookings, cur)
		}
	}
	d.Bookings = bookings
	return d
}

// swapBooking puts to in place of the entry that is exactly from.
func (d DayView) swapBooking(from, to *models.Booking) DayView {
	bookings := make([]*models.Booking, len(d.Bookings))
	for i, cur := range d.Bookings {
		if cur == from {
			bookings[i] = to
		} else {
			bookings[i] = cur
		}
	}
	d.Bookings = bookings
	return d
}

func (d DayView) replaceBooking(b *models.Booking) DayView {
	bookings := make([]*models.Booking, len(d.Bookings))
	for i, cur := range d.Bookings {
		if cur.ID == b.ID {
			bookings[i] = b
		} else {
			bookings[i] = cur
		}
	}
	d.Bookings = bookings
	return d
}

func (d DayView) withBlock(bl *models.Block) DayView {
	blocks := make([]*models.Block, 0, len(d.Blocks)+1)
	blocks = append(blocks, d.Blocks...)
	d.Blocks = append(blocks, bl)
	return d
}

func (d DayView) dropBlock(bl *models.Block) DayView {
	blocks := make([]*models.Block, 0, len(d.Blocks))
	for _, cur := range d.Blocks {
		if cur != bl {
			blocks = append(blocks, cur)
		}
	}
	d.Blocks = blocks
	return d
}

func (d DayView) withoutBlock(id int64) DayView {
	blocks := make([]*models.Block, 0, len(d.Blocks))
	for _, bl := range d.Blocks {
		if bl.ID != id {
			blocks = append(blocks, bl)
		}
	}
	d.Blocks = blocks
	return d
}

type dayLoader interface {
	GetBookingsByDate(ctx context.Context, date time.Time) ([]*models.Booking, error)
	GetBlocksByDate(ctx context.Context, date time.Time) ([]*models.Block, error)
}

// DayViews caches one optimistic cell per date, shared by the booking and block services.
type DayViews struct {
	repo  dayLoader
	mu    sync.Mutex
	cells map[string]*optimistic.Cell[DayView]
}

func NewDayViews(repo domain.Repository) *DayViews {
	return &DayViews{repo: repo, cells: make(map[string]*optimistic.Cell[DayView])}
}

// Cell returns the cell of date, creating an empty one on first use.
func (v *DayViews) Cell(date time.Time) *optimistic.Cell[DayView] {
	key := models.DateOf(date).Format(models.DateLayout)

	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.cells[key]
	if !ok {
		c = optimistic.NewCell(DayView{})
		v.cells[key] = c
	}
	return c
}

// Load fetches the latest bookings and blocks of date into its cell.
func (v *DayViews) Load(ctx context.Context, date time.Time) (DayView, error) {
	bookings, err := v.repo.GetBookingsByDate(ctx, date)
	if err != nil {
		return DayView{}, err
	}
	blocks, err := v.repo.GetBlocksByDate(ctx, date)
	if err != nil {
		return DayView{}, err
	}

	view := DayView{Bookings: bookings, Blocks: blocks, Loaded: true}
	v.Cell(date).Set(view)
	return view, nil
}

// Ensure returns the loaded view of date, loading it if needed.
func (v *DayViews) Ensure(ctx context.Context, date time.Time) (DayView, error) {
	if view := v.Cell(date).Get(); view.Loaded {
		return view, nil
	}
	return v.Load(ctx, date)
}

// Clear drops the loaded state of date.
func (v *DayViews) Clear(date time.Time) {
	v.Cell(date).Set(DayView{})
}

// ClearAll drops every loaded day, e.g. when the connection is lost.
func (v *DayViews) ClearAll() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cells = make(map[string]*optimistic.Cell[DayView])
}
