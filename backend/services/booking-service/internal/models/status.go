package models

import "fmt"

// BookingStatus is a booking lifecycle state.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusAccepted  BookingStatus = "accepted"
	StatusRejected  BookingStatus = "rejected"
	StatusActive    BookingStatus = "active"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// BookingEvent names a lifecycle transition trigger.
type BookingEvent string

const (
	EventAccept   BookingEvent = "accept"
	EventReject   BookingEvent = "reject"
	EventCancel   BookingEvent = "cancel"
	EventActivate BookingEvent = "activate"
	EventComplete BookingEvent = "complete"
)

// Transition is one allowed edge of the booking state machine.
type Transition struct {
	From  BookingStatus
	Event BookingEvent
	To    BookingStatus
}

var transitions = []Transition{
	{From: StatusPending, Event: EventAccept, To: StatusAccepted},
	{From: StatusPending, Event: EventReject, To: StatusRejected},
	{From: StatusPending, Event: EventCancel, To: StatusCancelled},
	{From: StatusAccepted, Event: EventCancel, To: StatusCancelled},
	{From: StatusAccepted, Event: EventActivate, To: StatusActive},
	{From: StatusActive, Event: EventComplete, To: StatusCompleted},
}

// BlockingStatuses are the statuses a new request must not overlap.
var BlockingStatuses = []BookingStatus{StatusPending, StatusAccepted}

// CommittedStatuses hold a slot for their interval. Accept arbitrates against these only.
var CommittedStatuses = []BookingStatus{StatusAccepted, StatusActive}

// TransitionFor returns the target status for event fired from s.
func (s BookingStatus) TransitionFor(event BookingEvent) (BookingStatus, bool) {
	for _, tr := range transitions {
		if tr.From == s && tr.Event == event {
			return tr.To, true
		}
	}
	return "", false
}

// IsValid reports whether s is a known status.
func (s BookingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no event can move a booking out of s.
func (s BookingStatus) IsTerminal() bool {
	for _, tr := range transitions {
		if tr.From == s {
			return false
		}
	}
	return true
}

// IsBlocking reports whether s takes part in request-time overlap checks.
func (s BookingStatus) IsBlocking() bool {
	for _, b := range BlockingStatuses {
		if b == s {
			return true
		}
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts raw into a BookingStatus.
func ParseBookingStatus(raw string) (BookingStatus, error) {
	status := BookingStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", raw)
	}
	return status, nil
}
