package models

import "time"

// Booking reserves one slot for the half-open interval [StartTime, EndTime).
type Booking struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"user_id"`
	VehicleID string        `db:"vehicle_id" json:"vehicle_id,omitempty"`
	StationID string        `db:"station_id" json:"station_id"`
	SlotID    string        `db:"slot_id" json:"slot_id"`
	StartTime time.Time     `db:"start_time" json:"start_time"`
	EndTime   time.Time     `db:"end_time" json:"end_time"`
	Status    BookingStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Interval returns the booking's reserved window.
func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether End is strictly after Start.
func (i Interval) Valid() bool {
	return !i.Start.IsZero() && !i.End.IsZero() && i.End.After(i.Start)
}

// TimeField selects which booking timestamp a due-query compares against.
type TimeField string

const (
	FieldStartTime TimeField = "start_time"
	FieldEndTime   TimeField = "end_time"
)

// Of returns the booking timestamp f refers to.
func (f TimeField) Of(b Booking) time.Time {
	if f == FieldEndTime {
		return b.EndTime
	}
	return b.StartTime
}

// DueCursor is the position after which a due listing resumes: the (time, id) of the last row
// already seen. The zero value starts from the oldest row.
type DueCursor struct {
	At time.Time
	ID string
}

// IsZero reports whether the cursor points at the start of the listing.
func (c DueCursor) IsZero() bool {
	return c.At.IsZero() && c.ID == ""
}

// CursorAfter returns the cursor positioned on b for field f.
func CursorAfter(f TimeField, b Booking) DueCursor {
	return DueCursor{At: f.Of(b), ID: b.ID}
}

// Past reports whether b sorts strictly after the cursor in (time, id) order.
func (c DueCursor) Past(f TimeField, b Booking) bool {
	if c.IsZero() {
		return true
	}
	at := f.Of(b)
	if !at.Equal(c.At) {
		return at.After(c.At)
	}
	return b.ID > c.ID
}
