package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
)

type StatusService struct {
	db     *database.Client
	logger *slog.Logger
}

func NewStatusService(db *database.Client, logger *slog.Logger) *StatusService {
	return &StatusService{db: db, logger: logger}
}

// TaskStatus returns the polling view of a task. id may be a task id or a
// photo id. Tasks of other owners are reported as not found.
func (s *StatusService) TaskStatus(ctx context.Context, ownerID string, id uuid.UUID) (*models.TaskStatusResponse, error) {
	var (
		photo  *models.Photo
		taskID = id
	)

	task, err := s.db.GetTask(ctx, id)
	switch {
	case err == nil:
		photo, err = s.db.GetPhoto(ctx, task.PhotoID)
	case errors.Is(err, database.ErrNotFound):
		photo, err = s.db.GetPhoto(ctx, id)
		if err == nil {
			if t, terr := s.db.GetTaskByPhotoID(ctx, id); terr == nil {
				taskID = t.ID
			}
		}
	}
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if photo.OwnerID != ownerID {
		return nil, ErrNotFound
	}

	if photo.Status.Terminal() && photo.Status != models.PhotoSuccess && len(photo.Items) > 0 {
		s.logger.ErrorContext(ctx, "terminal photo carries items; withholding them",
			"photo_id", photo.ID, "status", photo.Status)
	}
	return ProjectPhoto(photo, taskID), nil
}

// ProjectPhoto maps a stored photo to its public status. CANCELLED is shown
// as FAILED with error code CANCELLED. Items are exposed for SUCCESS only.
func ProjectPhoto(photo *models.Photo, taskID uuid.UUID) *models.TaskStatusResponse {
	resp := &models.TaskStatusResponse{
		TaskID:    taskID.String(),
		PhotoID:   photo.ID.String(),
		MealID:    photo.MealID.String(),
		UpdatedAt: photo.UpdatedAt,
	}

	switch photo.Status {
	case models.PhotoPending, models.PhotoProcessing:
		resp.Status = string(photo.Status)
	case models.PhotoSuccess:
		resp.Status = string(models.PhotoSuccess)
		result := &models.RecognitionResult{Items: photo.Items}
		if result.Items == nil {
			result.Items = []models.NutrientItem{}
		}
		if photo.Totals != nil {
			result.Totals = *photo.Totals
		} else {
			result.Totals = models.SumItems(photo.Items)
		}
		resp.Result = result
	case models.PhotoCancelled:
		resp.Status = string(models.PhotoFailed)
		resp.ErrorCode = models.ErrCodeCancelled
		resp.ErrorMessage = photo.ErrorMessage.String
	default:
		resp.Status = string(models.PhotoFailed)
		resp.ErrorCode = photo.ErrorCode.String
		resp.ErrorMessage = photo.ErrorMessage.String
		if resp.ErrorCode == "" {
			resp.ErrorCode = models.ErrCodeInternal
		}
	}
	return resp
}
