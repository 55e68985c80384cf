package models

import "time"

// Slot is a single charging point at a station.
type Slot struct {
	ID            string    `db:"id" json:"id"`
	StationID     string    `db:"station_id" json:"station_id"`
	ConnectorType string    `db:"connector_type" json:"connector_type"`
	MaxPowerKW    float64   `db:"max_power_kw" json:"max_power_kw"`
	IsAvailable   bool      `db:"is_available" json:"is_available"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
