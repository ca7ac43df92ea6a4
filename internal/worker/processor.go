package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/imaging"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
	"meal-photo-backend/internal/recognition"
	"meal-photo-backend/internal/services"
	"meal-photo-backend/internal/storage"
)

// Processor runs one recognition task end to end. Every step is safe to
// repeat: a redelivered task re-downloads, re-normalizes and re-recognizes,
// and only the race-guarded commit decides the photo's outcome.
type Processor struct {
	db            *database.Client
	store         storage.Store
	recognizer    recognition.Recognizer
	finalizer     *services.Finalizer
	revoker       *Revoker
	publisher     realtime.Publisher
	logger        *slog.Logger
	maxDeliveries int
	maxDimension  int
}

type ProcessorConfig struct {
	MaxDeliveries int
	MaxDimension  int
}

func NewProcessor(
	db *database.Client,
	store storage.Store,
	recognizer recognition.Recognizer,
	finalizer *services.Finalizer,
	revoker *Revoker,
	publisher realtime.Publisher,
	logger *slog.Logger,
	cfg ProcessorConfig,
) *Processor {
	if cfg.MaxDimension == 0 {
		cfg.MaxDimension = imaging.DefaultMaxDimension
	}
	return &Processor{
		db:            db,
		store:         store,
		recognizer:    recognizer,
		finalizer:     finalizer,
		revoker:       revoker,
		publisher:     publisher,
		logger:        logger,
		maxDeliveries: cfg.MaxDeliveries,
		maxDimension:  cfg.MaxDimension,
	}
}

// Process handles a claimed task. A returned error leaves the task leased; it
// is redelivered once the lease expires.
func (p *Processor) Process(ctx context.Context, task *models.RecognitionTask) error {
	logger := p.logger.With("task_id", task.ID, "photo_id", task.PhotoID, "delivery", task.Deliveries)

	photo, err := p.db.GetPhoto(ctx, task.PhotoID)
	if err != nil {
		return fmt.Errorf("failed to load photo: %w", err)
	}

	if photo.Status.Terminal() {
		logger.InfoContext(ctx, "photo already terminal, skipping", "status", photo.Status)
		return p.db.FinishTask(ctx, task.ID, time.Now().UTC())
	}

	if p.maxDeliveries > 0 && task.Deliveries > p.maxDeliveries {
		logger.ErrorContext(ctx, "delivery budget exhausted")
		_, err := p.finalizer.CommitFailure(ctx, photo, task.ID, models.ErrCodeDeliveryExhausted,
			fmt.Sprintf("task delivered %d times without completing", task.Deliveries))
		return err
	}

	started, err := p.db.StartPhoto(ctx, photo.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !started {
		logger.InfoContext(ctx, "photo became terminal before processing")
		return p.db.FinishTask(ctx, task.ID, time.Now().UTC())
	}
	p.publisher.Publish(ctx, realtime.Event{
		Type:    realtime.EventPhotoUpdated,
		OwnerID: photo.OwnerID,
		TaskID:  task.ID.String(),
		PhotoID: photo.ID.String(),
		MealID:  photo.MealID.String(),
		Status:  string(models.PhotoProcessing),
	})

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.revoker.register(photo.ID, cancel)
	defer p.revoker.unregister(photo.ID)

	data, err := p.store.Get(taskCtx, photo.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		_, err := p.finalizer.CommitFailure(ctx, photo, task.ID, models.ErrCodeInternal, "uploaded photo is missing")
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to download photo: %w", err)
	}

	normalized, contentType, err := imaging.Normalize(data, p.maxDimension)
	if err != nil {
		logger.InfoContext(ctx, "photo failed normalization", "error", err)
		_, err := p.finalizer.CommitFailure(ctx, photo, task.ID, models.ErrCodeInvalidImage, err.Error())
		return err
	}

	start := time.Now()
	result, err := p.recognizer.Recognize(taskCtx, recognition.Request{
		Image:       normalized,
		ContentType: contentType,
		Hint:        photo.Hint,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if taskCtx.Err() != nil {
			logger.InfoContext(ctx, "recognition revoked")
			return nil
		}

		recErr := recognition.AsError(err)
		logger.WarnContext(ctx, "recognition failed",
			"error_code", recErr.Code, "retryable", recErr.Retryable(), "error", err, "duration", time.Since(start))
		_, err := p.finalizer.CommitFailure(ctx, photo, task.ID, recErr.Code, recErr.Message)
		return err
	}

	logger.InfoContext(ctx, "recognition succeeded", "items", len(result.Items), "duration", time.Since(start))
	_, err = p.finalizer.CommitRecognition(ctx, photo, task.ID, result.Items, result.Totals)
	return err
}
