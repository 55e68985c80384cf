package service

import (
	"context"

	"evbooking/backend/services/booking-service/internal/models"
)

// Overlaps reports whether two half-open intervals intersect. Intervals that only touch
// (a.End == b.Start) do not overlap.
func Overlaps(a, b models.Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// FirstOverlap returns the first booking in existing whose interval overlaps candidate,
// skipping excludeID.
func FirstOverlap(candidate models.Interval, existing []models.Booking, excludeID string) *models.Booking {
	for i := range existing {
		if excludeID != "" && existing[i].ID == excludeID {
			continue
		}
		if Overlaps(candidate, existing[i].Interval()) {
			return &existing[i]
		}
	}
	return nil
}

// SlotBookingLister is the read HasBlockingConflict needs.
type SlotBookingLister interface {
	ListBookingsForSlot(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error)
}

// HasBlockingConflict loads the slot's bookings in statuses and returns the first one that
// overlaps candidate, or nil.
func HasBlockingConflict(
	ctx context.Context,
	store SlotBookingLister,
	candidate models.Interval,
	slotID string,
	statuses []models.BookingStatus,
	excludeID string,
) (*models.Booking, error) {
	existing, err := store.ListBookingsForSlot(ctx, slotID, statuses)
	if err != nil {
		return nil, err
	}
	return FirstOverlap(candidate, existing, excludeID), nil
}
