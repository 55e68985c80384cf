package repository

import (
	"context"
	"database/sql"
	"errors"
)

// TariffRepository looks up the active energy price, falling back to a configured default.
type TariffRepository struct {
	db           *sql.DB
	defaultPrice float64
}

// NewTariffRepository returns repository. db may be nil, in which case only the default is used.
func NewTariffRepository(db *sql.DB, defaultPrice float64) *TariffRepository {
	return &TariffRepository{db: db, defaultPrice: defaultPrice}
}

// PricePerKWh returns the price of the most recently updated active tariff or the default.
func (r *TariffRepository) PricePerKWh(ctx context.Context) (float64, error) {
	if r.db == nil {
		return r.fallback(errors.New("tariff: no tariff configured"))
	}

	const query = `
		SELECT price_per_kwh
		FROM tariffs
		WHERE is_active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var price float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&price); err != nil {
		return r.fallback(err)
	}
	return price, nil
}

func (r *TariffRepository) fallback(cause error) (float64, error) {
	if r.defaultPrice <= 0 {
		return 0, cause
	}
	return r.defaultPrice, nil
}
