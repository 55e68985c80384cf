package repository

import (
	"context"
	"database/sql"

	"evbooking/backend/services/booking-service/internal/service"
)

// StationRepository answers station ownership questions.
type StationRepository struct {
	db *sql.DB
}

var _ service.StationAuthorizer = (*StationRepository)(nil)

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

// IsStationManager reports whether principalID manages stationID.
func (r *StationRepository) IsStationManager(ctx context.Context, principalID, stationID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM stations WHERE id = $1 AND station_manager = $2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, stationID, principalID).Scan(&ok); err != nil {
		return false, mapError(err)
	}
	return ok, nil
}
