package models

import "time"

// Session status constants.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

// ChargingSession is the usage record opened when a booking becomes active.
type ChargingSession struct {
	ID        string     `db:"id" json:"id"`
	BookingID string     `db:"booking_id" json:"booking_id"`
	UserID    string     `db:"user_id" json:"user_id"`
	VehicleID string     `db:"vehicle_id" json:"vehicle_id,omitempty"`
	StationID string     `db:"station_id" json:"station_id"`
	SlotID    string     `db:"slot_id" json:"slot_id"`
	Status    string     `db:"status" json:"status"`
	StartTime time.Time  `db:"start_time" json:"start_time"`
	EndTime   *time.Time `db:"end_time" json:"end_time,omitempty"`
	EnergyKWh float64    `db:"energy_kwh" json:"energy_kwh"`
	Cost      float64    `db:"cost" json:"cost"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
