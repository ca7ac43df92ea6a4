package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IncrementUsage atomically counts one more photo for owner on day, unless
// the counter already reached limit. It reports the new count and whether the
// increment happened.
func (q queries) IncrementUsage(ctx context.Context, ownerID, day string, limit int) (int, bool, error) {
	var count int
	err := q.queryRow(ctx, `
		INSERT INTO usage_counters (owner_id, usage_date, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (owner_id, usage_date) DO UPDATE
		SET count = usage_counters.count + 1
		WHERE usage_counters.count < $3
		RETURNING count
	`, ownerID, day, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, true, nil
}

func (q queries) GetUsage(ctx context.Context, ownerID, day string) (int, error) {
	var count int
	err := q.queryRow(ctx, `
		SELECT count FROM usage_counters WHERE owner_id = $1 AND usage_date = $2
	`, ownerID, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage: %w", err)
	}
	return count, nil
}
