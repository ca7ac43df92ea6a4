package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"meal-photo-backend/internal/models"
)

const taskColumns = `id, photo_id, status, deliveries, lease_expires_at, created_at, updated_at`

func scanTask(row rowScanner) (*models.RecognitionTask, error) {
	var task models.RecognitionTask
	var status string
	err := row.Scan(&task.ID, &task.PhotoID, &status, &task.Deliveries, &task.LeaseExpiresAt, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Status = models.TaskStatus(status)
	return &task, nil
}

// EnqueueTask inserts one QUEUED unit of work for a photo. The unique
// photo_id column allows exactly one task per photo.
func (q queries) EnqueueTask(ctx context.Context, task *models.RecognitionTask) error {
	_, err := q.exec(ctx, `
		INSERT INTO recognition_tasks (id, photo_id, status, deliveries, lease_expires_at, created_at, updated_at)
		VALUES ($1, $2, 'QUEUED', 0, 0, $3, $4)
	`, task.ID, task.PhotoID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.Status = models.TaskQueued
	return nil
}

func (q queries) GetTask(ctx context.Context, taskID uuid.UUID) (*models.RecognitionTask, error) {
	task, err := scanTask(q.queryRow(ctx, `SELECT `+taskColumns+` FROM recognition_tasks WHERE id = $1`, taskID))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return task, nil
}

func (q queries) GetTaskByPhotoID(ctx context.Context, photoID uuid.UUID) (*models.RecognitionTask, error) {
	task, err := scanTask(q.queryRow(ctx, `SELECT `+taskColumns+` FROM recognition_tasks WHERE photo_id = $1`, photoID))
	if err != nil {
		return nil, notFound(err, "task")
	}
	return task, nil
}

// ClaimTask leases the oldest deliverable task: QUEUED, or RUNNING with an
// expired lease (its worker is presumed dead). The claim is a compare-and-swap
// on (status, lease_expires_at), so concurrent workers never share a lease.
// It returns nil when nothing is deliverable.
func (q queries) ClaimTask(ctx context.Context, now time.Time, lease time.Duration) (*models.RecognitionTask, error) {
	nowMillis := now.UnixMilli()
	rows, err := q.query(ctx, `
		SELECT id, status, lease_expires_at
		FROM recognition_tasks
		WHERE status = 'QUEUED' OR (status = 'RUNNING' AND lease_expires_at < $1)
		ORDER BY created_at ASC
		LIMIT 16
	`, nowMillis)
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}

	type candidate struct {
		id     uuid.UUID
		status string
		lease  int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.status, &c.lease); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}

	for _, c := range candidates {
		n, err := q.exec(ctx, `
			UPDATE recognition_tasks
			SET status = 'RUNNING', deliveries = deliveries + 1, lease_expires_at = $2, updated_at = $3
			WHERE id = $1 AND status = $4 AND lease_expires_at = $5
		`, c.id, now.Add(lease).UnixMilli(), now, c.status, c.lease)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task: %w", err)
		}
		if n == 1 {
			return q.GetTask(ctx, c.id)
		}
	}
	return nil, nil
}

// FinishTask marks a RUNNING task DONE. A revoked task keeps its status.
func (q queries) FinishTask(ctx context.Context, taskID uuid.UUID, now time.Time) error {
	_, err := q.exec(ctx, `
		UPDATE recognition_tasks
		SET status = 'DONE', lease_expires_at = 0, updated_at = $2
		WHERE id = $1 AND status = 'RUNNING'
	`, taskID, now)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	return nil
}

// RevokeTask revokes a photo's QUEUED or RUNNING task.
func (q queries) RevokeTask(ctx context.Context, photoID uuid.UUID, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE recognition_tasks
		SET status = 'REVOKED', lease_expires_at = 0, updated_at = $2
		WHERE photo_id = $1 AND status IN ('QUEUED', 'RUNNING')
	`, photoID, now)
	if err != nil {
		return false, fmt.Errorf("failed to revoke task: %w", err)
	}
	return n == 1, nil
}
