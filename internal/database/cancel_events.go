package database

import (
	"context"
	"fmt"

	"meal-photo-backend/internal/models"
)

// ClaimCancelToken inserts the event row for a new token. It reports false
// when the token already exists; on Postgres a concurrent insert of the same
// token blocks on the unique index until the first transaction ends.
func (q queries) ClaimCancelToken(ctx context.Context, event *models.CancelEvent) (bool, error) {
	photoIDs, err := encodeIDs(event.PhotoIDs)
	if err != nil {
		return false, err
	}
	mealIDs, err := encodeIDs(event.MealIDs)
	if err != nil {
		return false, err
	}
	taskIDs, err := encodeIDs(event.TaskIDs)
	if err != nil {
		return false, err
	}

	n, err := q.exec(ctx, `
		INSERT INTO cancel_events (token, owner_id, photo_ids, meal_ids, task_ids, reason, noop, cancelled_tasks, updated_photos, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8)
		ON CONFLICT (token) DO NOTHING
	`, event.Token, event.OwnerID, photoIDs, mealIDs, taskIDs, event.Reason, true, event.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim cancel token: %w", err)
	}
	return n == 1, nil
}

// RecordCancelOutcome stores the outcome on the event claimed by the same
// transaction.
func (q queries) RecordCancelOutcome(ctx context.Context, token string, noop bool, cancelledTasks, updatedPhotos int) error {
	_, err := q.exec(ctx, `
		UPDATE cancel_events
		SET noop = $2, cancelled_tasks = $3, updated_photos = $4
		WHERE token = $1
	`, token, noop, cancelledTasks, updatedPhotos)
	if err != nil {
		return fmt.Errorf("failed to record cancel outcome: %w", err)
	}
	return nil
}

func (q queries) GetCancelEvent(ctx context.Context, token string) (*models.CancelEvent, error) {
	var event models.CancelEvent
	var photoIDs, mealIDs, taskIDs []byte
	err := q.queryRow(ctx, `
		SELECT token, owner_id, photo_ids, meal_ids, task_ids, reason, noop, cancelled_tasks, updated_photos, created_at
		FROM cancel_events
		WHERE token = $1
	`, token).Scan(
		&event.Token, &event.OwnerID, &photoIDs, &mealIDs, &taskIDs, &event.Reason,
		&event.Noop, &event.CancelledTasks, &event.UpdatedPhotos, &event.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "cancel event")
	}
	if event.PhotoIDs, err = decodeIDs(photoIDs); err != nil {
		return nil, err
	}
	if event.MealIDs, err = decodeIDs(mealIDs); err != nil {
		return nil, err
	}
	if event.TaskIDs, err = decodeIDs(taskIDs); err != nil {
		return nil, err
	}
	return &event, nil
}

func (q queries) CountCancelEvents(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM cancel_events WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cancel events: %w", err)
	}
	return count, nil
}
