package repository

import (
	"context"
	"errors"
	"fmt"

	"em-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type electionRepository struct {
	pool *pgxpool.Pool
}

// NewElectionRepository creates a new ElectionRepository.
func NewElectionRepository(pool *pgxpool.Pool) domain.ElectionRepository {
	return &electionRepository{pool: pool}
}

func (r *electionRepository) GetByCountryCode(ctx context.Context, countryCode string) (*domain.Election, error) {
	query := `
		SELECT id, country_code, country_name, name, year, election_date
		FROM elections
		WHERE country_code = $1
		ORDER BY election_date DESC
		LIMIT 1
	`
	var e domain.Election
	err := r.pool.QueryRow(ctx, query, countryCode).Scan(
		&e.ID,
		&e.CountryCode,
		&e.CountryName,
		&e.Name,
		&e.Year,
		&e.Date,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no election for country %q: %w", countryCode, domain.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("failed to query election: %w", err)
	}
	return &e, nil
}
