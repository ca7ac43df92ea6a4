package services

import (
	"context"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
)

// CommitRecognition stores a successful recognition for photo and finalizes
// its meal, atomically. It reports false when the photo had already become
// terminal; the result is then discarded.
func (f *Finalizer) CommitRecognition(ctx context.Context, photo *models.Photo, taskID uuid.UUID, items []models.NutrientItem, totals models.Totals) (bool, error) {
	return f.commit(ctx, photo, taskID, models.PhotoSuccess, "", func(tx *database.Tx) (bool, error) {
		return tx.CompletePhoto(ctx, photo.ID, items, totals, f.now())
	})
}

// CommitFailure records a terminal failure for photo under the same guard as
// CommitRecognition.
func (f *Finalizer) CommitFailure(ctx context.Context, photo *models.Photo, taskID uuid.UUID, code, message string) (bool, error) {
	return f.commit(ctx, photo, taskID, models.PhotoFailed, code, func(tx *database.Tx) (bool, error) {
		return tx.FailPhoto(ctx, photo.ID, code, message, f.now())
	})
}

func (f *Finalizer) commit(ctx context.Context, photo *models.Photo, taskID uuid.UUID, status models.PhotoStatus, code string, write func(tx *database.Tx) (bool, error)) (bool, error) {
	var (
		committed bool
		change    *mealChange
	)
	err := f.db.InTx(ctx, func(tx *database.Tx) error {
		now := f.now()
		var err error
		committed, err = write(tx)
		if err != nil {
			return err
		}
		if committed {
			change, err = finalizeMeal(ctx, tx, photo.MealID, now)
			if err != nil {
				return err
			}
		}
		return tx.FinishTask(ctx, taskID, now)
	})
	if err != nil {
		return false, err
	}

	if !committed {
		f.logger.InfoContext(ctx, "discarding result for terminal photo",
			"photo_id", photo.ID, "task_id", taskID, "result", status)
		return false, nil
	}

	f.logger.InfoContext(ctx, "photo committed", "photo_id", photo.ID, "status", status, "error_code", code)
	f.publisher.Publish(ctx, realtime.Event{
		Type:      realtime.EventPhotoUpdated,
		OwnerID:   photo.OwnerID,
		TaskID:    taskID.String(),
		PhotoID:   photo.ID.String(),
		MealID:    photo.MealID.String(),
		Status:    string(status),
		ErrorCode: code,
	})
	if change != nil {
		f.publishMeal(ctx, change)
	}
	return true, nil
}
