package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"meal-photo-backend/internal/models"
)

const photoColumns = `p.id, p.meal_id, p.owner_id, p.status, p.error_code, p.error_message, p.hint,
	p.storage_path, p.content_type, p.items, p.totals, p.created_at, p.updated_at`

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var photo models.Photo
	var status string
	var items, totals []byte
	err := row.Scan(
		&photo.ID, &photo.MealID, &photo.OwnerID, &status, &photo.ErrorCode, &photo.ErrorMessage,
		&photo.Hint, &photo.StoragePath, &photo.ContentType, &items, &totals,
		&photo.CreatedAt, &photo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	photo.Status = models.PhotoStatus(status)
	if photo.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	if photo.Totals, err = decodeTotals(totals); err != nil {
		return nil, err
	}
	return &photo, nil
}

func (q queries) CreatePhoto(ctx context.Context, photo *models.Photo) error {
	_, err := q.exec(ctx, `
		INSERT INTO photos (id, meal_id, owner_id, status, hint, storage_path, content_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, photo.ID, photo.MealID, photo.OwnerID, string(photo.Status), photo.Hint,
		photo.StoragePath, photo.ContentType, photo.CreatedAt, photo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

func (q queries) GetPhoto(ctx context.Context, photoID uuid.UUID) (*models.Photo, error) {
	photo, err := scanPhoto(q.queryRow(ctx, `SELECT `+photoColumns+` FROM photos p WHERE p.id = $1`, photoID))
	if err != nil {
		return nil, notFound(err, "photo")
	}
	return photo, nil
}

func (q queries) GetPhotoByTaskID(ctx context.Context, taskID uuid.UUID) (*models.Photo, error) {
	photo, err := scanPhoto(q.queryRow(ctx, `
		SELECT `+photoColumns+`
		FROM photos p
		JOIN recognition_tasks t ON t.photo_id = p.id
		WHERE t.id = $1
	`, taskID))
	if err != nil {
		return nil, notFound(err, "photo")
	}
	return photo, nil
}

func (q queries) listPhotos(ctx context.Context, query string, args ...any) ([]models.Photo, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, *photo)
	}
	return photos, rows.Err()
}

// ListMealPhotos returns a meal's photos in submission order.
func (q queries) ListMealPhotos(ctx context.Context, mealID uuid.UUID) ([]models.Photo, error) {
	return q.listPhotos(ctx, `
		SELECT `+photoColumns+`
		FROM photos p
		WHERE p.meal_id = $1
		ORDER BY p.created_at ASC, p.id ASC
	`, mealID)
}

// StartPhoto moves a photo into PROCESSING. PROCESSING is accepted as a
// source state so a redelivered task can resume. False means the photo is
// already terminal.
func (q queries) StartPhoto(ctx context.Context, photoID uuid.UUID, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE photos
		SET status = 'PROCESSING', updated_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, photoID, now)
	if err != nil {
		return false, fmt.Errorf("failed to start photo: %w", err)
	}
	return n == 1, nil
}

// CompletePhoto is the race guard for a successful recognition: the
// recognized items are written only if the photo is still non-terminal.
func (q queries) CompletePhoto(ctx context.Context, photoID uuid.UUID, items []models.NutrientItem, totals models.Totals, now time.Time) (bool, error) {
	if items == nil {
		items = []models.NutrientItem{}
	}
	itemsJSON, err := nullJSON(items)
	if err != nil {
		return false, err
	}
	totalsJSON, err := nullJSON(&totals)
	if err != nil {
		return false, err
	}
	n, err := q.exec(ctx, `
		UPDATE photos
		SET status = 'SUCCESS', items = $2, totals = $3, error_code = NULL, error_message = NULL, updated_at = $4
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, photoID, itemsJSON, totalsJSON, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete photo: %w", err)
	}
	return n == 1, nil
}

// FailPhoto is the race guard for a failed recognition.
func (q queries) FailPhoto(ctx context.Context, photoID uuid.UUID, code, message string, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE photos
		SET status = 'FAILED', error_code = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, photoID, code, message, now)
	if err != nil {
		return false, fmt.Errorf("failed to fail photo: %w", err)
	}
	return n == 1, nil
}

// CancelPhoto transitions an owner's non-terminal photo to CANCELLED.
func (q queries) CancelPhoto(ctx context.Context, photoID uuid.UUID, ownerID, reason string, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE photos
		SET status = 'CANCELLED', error_code = $3, error_message = $4, updated_at = $5
		WHERE id = $1 AND owner_id = $2 AND status IN ('PENDING', 'PROCESSING')
	`, photoID, ownerID, models.ErrCodeCancelled, reason, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel photo: %w", err)
	}
	return n == 1, nil
}

// ListActivePhotos returns PENDING and PROCESSING photos, oldest first.
func (q queries) ListActivePhotos(ctx context.Context, limit int) ([]models.Photo, error) {
	return q.listPhotos(ctx, `
		SELECT `+photoColumns+`
		FROM photos p
		WHERE p.status IN ('PENDING', 'PROCESSING')
		ORDER BY p.created_at ASC
		LIMIT $1
	`, limit)
}

// ListPhotosWithoutTask returns photos that were never paired with a
// recognition task.
func (q queries) ListPhotosWithoutTask(ctx context.Context, limit int) ([]models.Photo, error) {
	return q.listPhotos(ctx, `
		SELECT `+photoColumns+`
		FROM photos p
		LEFT JOIN recognition_tasks t ON t.photo_id = p.id
		WHERE t.id IS NULL
		ORDER BY p.created_at ASC
		LIMIT $1
	`, limit)
}

// ListLeakedPhotos returns CANCELLED or FAILED photos that carry items.
func (q queries) ListLeakedPhotos(ctx context.Context, limit int) ([]models.Photo, error) {
	return q.listPhotos(ctx, `
		SELECT `+photoColumns+`
		FROM photos p
		WHERE p.status IN ('CANCELLED', 'FAILED') AND p.items IS NOT NULL
		ORDER BY p.created_at ASC
		LIMIT $1
	`, limit)
}
