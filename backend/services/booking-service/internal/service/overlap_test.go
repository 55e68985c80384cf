package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"evbooking/backend/services/booking-service/internal/models"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func span(startMin, endMin int) models.Interval {
	return models.Interval{
		Start: base.Add(time.Duration(startMin) * time.Minute),
		End:   base.Add(time.Duration(endMin) * time.Minute),
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Interval
		want bool
	}{
		{name: "identical", a: span(0, 60), b: span(0, 60), want: true},
		{name: "partial", a: span(0, 60), b: span(30, 90), want: true},
		{name: "contained", a: span(0, 120), b: span(30, 60), want: true},
		{name: "touching end to start", a: span(0, 60), b: span(60, 120), want: false},
		{name: "touching start to end", a: span(60, 120), b: span(0, 60), want: false},
		{name: "disjoint", a: span(0, 30), b: span(90, 120), want: false},
		{name: "one minute shared", a: span(0, 61), b: span(60, 120), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			require.Equal(t, tt.want, Overlaps(tt.b, tt.a))
		})
	}
}

func TestFirstOverlapSkipsExcluded(t *testing.T) {
	existing := []models.Booking{
		{ID: "self", StartTime: span(0, 60).Start, EndTime: span(0, 60).End},
		{ID: "after", StartTime: span(60, 90).Start, EndTime: span(60, 90).End},
	}

	require.Nil(t, FirstOverlap(span(0, 60), existing, "self"))

	hit := FirstOverlap(span(30, 70), existing, "self")
	require.NotNil(t, hit)
	require.Equal(t, "after", hit.ID)
}

type listerFunc func(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error)

func (f listerFunc) ListBookingsForSlot(ctx context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error) {
	return f(ctx, slotID, statuses)
}

func TestHasBlockingConflictPassesFilters(t *testing.T) {
	var gotSlot string
	var gotStatuses []models.BookingStatus
	lister := listerFunc(func(_ context.Context, slotID string, statuses []models.BookingStatus) ([]models.Booking, error) {
		gotSlot, gotStatuses = slotID, statuses
		return []models.Booking{{ID: "b1", StartTime: span(0, 60).Start, EndTime: span(0, 60).End}}, nil
	})

	hit, err := HasBlockingConflict(context.Background(), lister, span(59, 70), "slot-9", models.BlockingStatuses, "")
	require.NoError(t, err)
	require.NotNil(t, hit)
	require.Equal(t, "slot-9", gotSlot)
	require.Equal(t, models.BlockingStatuses, gotStatuses)
}

func TestHasBlockingConflictPropagatesStoreErrors(t *testing.T) {
	boom := errors.New("boom")
	lister := listerFunc(func(context.Context, string, []models.BookingStatus) ([]models.Booking, error) {
		return nil, boom
	})

	_, err := HasBlockingConflict(context.Background(), lister, span(0, 10), "slot-1", models.BlockingStatuses, "")
	require.ErrorIs(t, err, boom)
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify(nil))
	require.ErrorIs(t, classify(ErrConflict), ErrConflict)
	require.ErrorIs(t, classify(context.DeadlineExceeded), ErrStoreUnavailable)
	require.ErrorIs(t, classify(errors.New("connection reset")), ErrStoreUnavailable)
}
