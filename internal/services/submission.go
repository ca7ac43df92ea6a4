package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/imaging"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
	"meal-photo-backend/internal/storage"
)

const maxHintLength = 500

// Notifier is told that new work was enqueued. It must not block.
type Notifier interface {
	Notify()
}

type SubmitInput struct {
	OwnerID  string
	Image    []byte
	Date     string // YYYY-MM-DD
	MealType string
	MealID   uuid.UUID // uuid.Nil creates a new meal
	Hint     string
}

type SubmitResult struct {
	MealID  uuid.UUID
	PhotoID uuid.UUID
	TaskID  uuid.UUID
}

type SubmissionConfig struct {
	DailyPhotoLimit int
	MaxUploadBytes  int64
}

// Submission accepts meal photos and enqueues them for recognition.
type Submission struct {
	db        *database.Client
	store     storage.Store
	notifier  Notifier
	publisher realtime.Publisher
	logger    *slog.Logger
	cfg       SubmissionConfig
	now       func() time.Time
}

func NewSubmission(db *database.Client, store storage.Store, notifier Notifier, publisher realtime.Publisher, logger *slog.Logger, cfg SubmissionConfig) *Submission {
	return &Submission{
		db:        db,
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Submission) validate(in SubmitInput) error {
	if in.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if len(in.Image) == 0 {
		return fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(in.Image)) > s.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: exceeds %d bytes", ErrImageTooLarge, s.cfg.MaxUploadBytes)
	}
	if _, err := time.Parse(time.DateOnly, in.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if !slices.Contains(models.MealTypes, in.MealType) {
		return fmt.Errorf("%w: meal_type must be one of %v", ErrInvalidInput, models.MealTypes)
	}
	if len(in.Hint) > maxHintLength {
		return fmt.Errorf("%w: hint exceeds %d characters", ErrInvalidInput, maxHintLength)
	}
	return nil
}

// Submit stores the image, creates the photo and its task in one transaction
// and returns immediately. Recognition happens in the worker pool.
func (s *Submission) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	now := s.now()
	day := now.Format(time.DateOnly)

	// Pre-check before uploading. The increment inside the transaction is
	// authoritative.
	used, err := s.db.GetUsage(ctx, in.OwnerID, day)
	if err != nil {
		return nil, err
	}
	if used >= s.cfg.DailyPhotoLimit {
		return nil, ErrQuotaExceeded
	}

	mealID := in.MealID
	newMeal := mealID == uuid.Nil
	if newMeal {
		mealID = uuid.New()
	}
	photoID := uuid.New()
	taskID := uuid.New()

	// Undecodable uploads are still accepted; the worker fails them with
	// INVALID_IMAGE.
	contentType, err := imaging.DetectContentType(in.Image)
	if err != nil {
		contentType = "application/octet-stream"
	}

	path := storage.PhotoPath(in.OwnerID, mealID, photoID)
	if err := s.store.Put(ctx, path, in.Image, contentType); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		_, ok, err := tx.IncrementUsage(ctx, in.OwnerID, day, s.cfg.DailyPhotoLimit)
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuotaExceeded
		}

		if newMeal {
			err = tx.CreateMeal(ctx, &models.Meal{
				ID:        mealID,
				OwnerID:   in.OwnerID,
				Date:      in.Date,
				MealType:  in.MealType,
				Status:    models.MealDraft,
				CreatedAt: now,
				UpdatedAt: now,
			})
			if err != nil {
				return err
			}
		} else if err := lockOwnedDraftMeal(ctx, tx, mealID, in.OwnerID, now); err != nil {
			return err
		}

		err = tx.CreatePhoto(ctx, &models.Photo{
			ID:          photoID,
			MealID:      mealID,
			OwnerID:     in.OwnerID,
			Status:      models.PhotoPending,
			Hint:        in.Hint,
			StoragePath: path,
			ContentType: contentType,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}

		return tx.EnqueueTask(ctx, &models.RecognitionTask{
			ID:        taskID,
			PhotoID:   photoID,
			Status:    models.TaskQueued,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "photo submitted",
		"owner_id", in.OwnerID, "meal_id", mealID, "photo_id", photoID, "task_id", taskID)

	if s.notifier != nil {
		s.notifier.Notify()
	}
	s.publisher.Publish(ctx, realtime.Event{
		Type:    realtime.EventPhotoUpdated,
		OwnerID: in.OwnerID,
		TaskID:  taskID.String(),
		PhotoID: photoID.String(),
		MealID:  mealID.String(),
		Status:  string(models.PhotoPending),
	})

	return &SubmitResult{MealID: mealID, PhotoID: photoID, TaskID: taskID}, nil
}

// lockOwnedDraftMeal locks an existing meal for a new photo. Meals of other
// owners are reported as missing.
func lockOwnedDraftMeal(ctx context.Context, tx *database.Tx, mealID uuid.UUID, ownerID string, now time.Time) error {
	meal, err := tx.GetMeal(ctx, mealID)
	if errors.Is(err, database.ErrNotFound) || (err == nil && meal.OwnerID != ownerID) {
		return ErrMealNotFound
	}
	if err != nil {
		return err
	}

	locked, err := tx.LockDraftMeal(ctx, mealID, now)
	if err != nil {
		return err
	}
	if !locked {
		return ErrMealClosed
	}
	return nil
}
