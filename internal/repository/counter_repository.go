package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// CounterRepository hands out monotonic running numbers keyed by
// prefix+year. The increment is a single atomic read-modify-write so no two
// concurrent callers can observe the same value for one key.
type CounterRepository struct {
	db *sqlx.DB
}

// NewCounterRepository constructs the repository.
func NewCounterRepository(db *sqlx.DB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next atomically increments the counter for the key, creating it at 1 on
// first use, and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, key string) (int, error) {
	const query = `INSERT INTO counters (key, count) VALUES ($1, 1)
        ON CONFLICT (key) DO UPDATE SET count = counters.count + 1
        RETURNING count`
	var count int
	if err := r.db.GetContext(ctx, &count, query, key); err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", key, err)
	}
	return count, nil
}
