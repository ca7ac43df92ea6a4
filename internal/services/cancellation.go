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
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
)

const maxIdempotencyKeyLength = 255

// Revoker stops in-flight recognition of a photo on this process. Revocation
// is advisory; the race guard rejects late results regardless.
type Revoker interface {
	Revoke(photoID uuid.UUID) bool
}

type CancelInput struct {
	Token    string
	OwnerID  string
	PhotoIDs []uuid.UUID
	MealIDs  []uuid.UUID
	TaskIDs  []uuid.UUID
	Reason   string
}

type CancelOutcome struct {
	Noop           bool
	CancelledTasks int
	UpdatedPhotos  int
}

type Cancellation struct {
	db        *database.Client
	revoker   Revoker
	publisher realtime.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewCancellation(db *database.Client, revoker Revoker, publisher realtime.Publisher, logger *slog.Logger) *Cancellation {
	return &Cancellation{
		db:        db,
		revoker:   revoker,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Cancel cancels the caller's non-terminal target photos at most once per
// token. Replays of a token, including concurrent ones, return the outcome
// stored by the first call.
func (c *Cancellation) Cancel(ctx context.Context, in CancelInput) (*CancelOutcome, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", ErrInvalidInput)
	}
	if in.Token == "" || len(in.Token) > maxIdempotencyKeyLength {
		return nil, fmt.Errorf("%w: idempotency key must be 1-%d characters", ErrInvalidInput, maxIdempotencyKeyLength)
	}

	if event, err := c.db.GetCancelEvent(ctx, in.Token); err == nil {
		return replay(event, in.OwnerID)
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	var (
		claimed   bool
		outcome   CancelOutcome
		cancelled []models.Photo
		changes   []*mealChange
	)
	err := c.db.InTx(ctx, func(tx *database.Tx) error {
		now := c.now()
		var err error
		claimed, err = tx.ClaimCancelToken(ctx, &models.CancelEvent{
			Token:     in.Token,
			OwnerID:   in.OwnerID,
			PhotoIDs:  in.PhotoIDs,
			MealIDs:   in.MealIDs,
			TaskIDs:   in.TaskIDs,
			Reason:    in.Reason,
			Noop:      true,
			CreatedAt: now,
		})
		if err != nil || !claimed {
			return err
		}

		targets, err := resolveTargets(ctx, tx, in)
		if err != nil {
			return err
		}

		affected := map[uuid.UUID]struct{}{}
		for _, photo := range targets {
			if photo.Status.Terminal() {
				continue
			}
			ok, err := tx.CancelPhoto(ctx, photo.ID, in.OwnerID, in.Reason, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			outcome.UpdatedPhotos++
			cancelled = append(cancelled, photo)
			affected[photo.MealID] = struct{}{}

			revoked, err := tx.RevokeTask(ctx, photo.ID, now)
			if err != nil {
				return err
			}
			if revoked {
				outcome.CancelledTasks++
			}
		}

		mealIDs := make([]uuid.UUID, 0, len(affected))
		for id := range affected {
			mealIDs = append(mealIDs, id)
		}
		slices.SortFunc(mealIDs, compareIDs)
		for _, mealID := range mealIDs {
			change, err := finalizeMeal(ctx, tx, mealID, now)
			if err != nil {
				return err
			}
			if change != nil {
				changes = append(changes, change)
			}
		}

		outcome.Noop = outcome.UpdatedPhotos == 0
		return tx.RecordCancelOutcome(ctx, in.Token, outcome.Noop, outcome.CancelledTasks, outcome.UpdatedPhotos)
	})
	if err != nil {
		return nil, err
	}

	if !claimed {
		event, err := c.db.GetCancelEvent(ctx, in.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to read concurrent cancel outcome: %w", err)
		}
		return replay(event, in.OwnerID)
	}

	c.logger.InfoContext(ctx, "cancel applied",
		"owner_id", in.OwnerID, "token", in.Token, "updated_photos", outcome.UpdatedPhotos,
		"cancelled_tasks", outcome.CancelledTasks, "noop", outcome.Noop)

	for _, photo := range cancelled {
		if c.revoker != nil && c.revoker.Revoke(photo.ID) {
			c.logger.DebugContext(ctx, "revoked in-flight recognition", "photo_id", photo.ID)
		}
		c.publisher.Publish(ctx, realtime.Event{
			Type:      realtime.EventCancelled,
			OwnerID:   photo.OwnerID,
			PhotoID:   photo.ID.String(),
			MealID:    photo.MealID.String(),
			Status:    string(models.PhotoCancelled),
			ErrorCode: models.ErrCodeCancelled,
		})
	}
	for _, change := range changes {
		c.publisher.Publish(ctx, realtime.Event{
			Type:    realtime.EventMealUpdated,
			OwnerID: change.OwnerID,
			MealID:  change.MealID.String(),
			Status:  string(change.Status),
		})
	}

	return &outcome, nil
}

func replay(event *models.CancelEvent, ownerID string) (*CancelOutcome, error) {
	if event.OwnerID != ownerID {
		return nil, ErrTokenConflict
	}
	return &CancelOutcome{
		Noop:           event.Noop,
		CancelledTasks: event.CancelledTasks,
		UpdatedPhotos:  event.UpdatedPhotos,
	}, nil
}

// resolveTargets expands meal and task ids into photos, deduplicated and in
// id order. Unknown ids are skipped; ids of another owner reject the request.
func resolveTargets(ctx context.Context, tx *database.Tx, in CancelInput) ([]models.Photo, error) {
	byID := map[uuid.UUID]models.Photo{}
	add := func(p *models.Photo) error {
		if p.OwnerID != in.OwnerID {
			return fmt.Errorf("%w: photo %s", ErrForbiddenTarget, p.ID)
		}
		byID[p.ID] = *p
		return nil
	}

	for _, id := range in.PhotoIDs {
		photo, err := tx.GetPhoto(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := add(photo); err != nil {
			return nil, err
		}
	}

	for _, id := range in.TaskIDs {
		photo, err := tx.GetPhotoByTaskID(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := add(photo); err != nil {
			return nil, err
		}
	}

	for _, id := range in.MealIDs {
		meal, err := tx.GetMeal(ctx, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if meal.OwnerID != in.OwnerID {
			return nil, fmt.Errorf("%w: meal %s", ErrForbiddenTarget, id)
		}
		photos, err := tx.ListMealPhotos(ctx, id)
		if err != nil {
			return nil, err
		}
		for i := range photos {
			if err := add(&photos[i]); err != nil {
				return nil, err
			}
		}
	}

	targets := make([]models.Photo, 0, len(byID))
	for _, p := range byID {
		targets = append(targets, p)
	}
	slices.SortFunc(targets, func(a, b models.Photo) int { return compareIDs(a.ID, b.ID) })
	return targets, nil
}

func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
