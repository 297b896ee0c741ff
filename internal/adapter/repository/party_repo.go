package repository

import (
	"context"
	"fmt"

	"em-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type partyRepository struct {
	pool *pgxpool.Pool
}

// NewPartyRepository creates a new PartyRepository.
func NewPartyRepository(pool *pgxpool.Pool) domain.PartyRepository {
	return &partyRepository{pool: pool}
}

func (r *partyRepository) GetByShortnames(ctx context.Context, electionID uuid.UUID, shortnames []string) ([]domain.Party, error) {
	query := `
		SELECT id, election_id, shortname, fullname, description, url
		FROM parties
		WHERE election_id = $1 AND shortname = ANY($2)
		ORDER BY shortname ASC
	`
	rows, err := r.pool.Query(ctx, query, electionID, shortnames)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []domain.Party
	for rows.Next() {
		var p domain.Party
		if err := rows.Scan(&p.ID, &p.ElectionID, &p.Shortname, &p.Fullname, &p.Description, &p.URL); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return parties, nil
}

func (r *partyRepository) ListByElection(ctx context.Context, electionID uuid.UUID) ([]domain.Party, error) {
	query := `
		SELECT id, election_id, shortname, fullname, description, url
		FROM parties
		WHERE election_id = $1
		ORDER BY shortname ASC
	`
	rows, err := r.pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []domain.Party
	for rows.Next() {
		var p domain.Party
		if err := rows.Scan(&p.ID, &p.ElectionID, &p.Shortname, &p.Fullname, &p.Description, &p.URL); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return parties, nil
}
