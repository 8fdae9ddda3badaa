package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-engine/internal/domain"
)

// RoundRepository reads and writes the rounds table.
type RoundRepository struct {
	pool *pgxpool.Pool
}

func NewRoundRepository(pool *pgxpool.Pool) *RoundRepository {
	return &RoundRepository{pool: pool}
}

func (r *RoundRepository) Current(ctx context.Context, now time.Time, window time.Duration) (*domain.Round, error) {
	var round domain.Round
	err := r.pool.QueryRow(ctx,
		`SELECT id, scheduled_start FROM rounds WHERE scheduled_start > $1 ORDER BY scheduled_start LIMIT 1`,
		now.Add(-window)).Scan(&round.ID, &round.ScheduledStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query current round: %w", err)
	}
	return &round, nil
}

func (r *RoundRepository) Get(ctx context.Context, roundID string) (domain.Round, error) {
	var round domain.Round
	err := r.pool.QueryRow(ctx,
		`SELECT id, scheduled_start FROM rounds WHERE id = $1`, roundID).
		Scan(&round.ID, &round.ScheduledStart)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Round{}, domain.ErrRoundNotFound
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("query round %s: %w", roundID, err)
	}
	return round, nil
}

// Schedule adds a round or moves an existing one.
func (r *RoundRepository) Schedule(ctx context.Context, round domain.Round) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rounds (id, scheduled_start) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET scheduled_start = EXCLUDED.scheduled_start`,
		round.ID, round.ScheduledStart)
	if err != nil {
		return fmt.Errorf("schedule round %s: %w", round.ID, err)
	}
	return nil
}
