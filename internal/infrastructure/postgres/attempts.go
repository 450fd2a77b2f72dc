package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AttemptStore tracks delivery attempts per request key in a side table, so
// the worker can bound redelivery and route a persistently failing message to
// the dead-letter topic instead of retrying it forever. Attempts survive
// worker restarts.
type AttemptStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAttemptStore creates an attempt store.
func NewAttemptStore(pool *pgxpool.Pool, logger *zap.Logger) *AttemptStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptStore{pool: pool, logger: logger}
}

// Bump records one failed delivery attempt and returns the running count.
func (s *AttemptStore) Bump(ctx context.Context, requestKey, lastError string) (int, error) {
	query := `
		INSERT INTO delivery_attempts (request_key, attempts, last_error)
		VALUES ($1, 1, $2)
		ON CONFLICT (request_key) DO UPDATE
		SET attempts = delivery_attempts.attempts + 1,
		    last_error = $2,
		    updated_at = NOW()
		RETURNING attempts
	`
	var attempts int
	if err := s.pool.QueryRow(ctx, query, requestKey, lastError).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("bump delivery attempts: %w", err)
	}
	return attempts, nil
}

// Clear removes the attempt row after a message is applied or dead-lettered.
func (s *AttemptStore) Clear(ctx context.Context, requestKey string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM delivery_attempts WHERE request_key = $1`, requestKey); err != nil {
		return fmt.Errorf("clear delivery attempts: %w", err)
	}
	return nil
}

// CleanupStale removes attempt rows that have not been touched for the given
// duration, covering keys whose messages aged out of the request topic.
func (s *AttemptStore) CleanupStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM delivery_attempts
		WHERE updated_at < NOW() - $1::interval
	`, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup delivery attempts: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("stale delivery attempts removed", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}
