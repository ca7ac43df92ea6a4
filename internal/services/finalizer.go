package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
)

// MealOutcome is the derived state of a meal.
type MealOutcome struct {
	Status models.MealStatus
	Items  []models.NutrientItem
	Totals models.Totals
}

// DeriveMealStatus computes a meal's status from its photos. Photos must be
// in creation order; items of SUCCESS photos are concatenated in that order.
//
// Any non-terminal photo keeps the meal in DRAFT. Otherwise one SUCCESS photo
// is enough for COMPLETE, and a meal with none is FAILED.
func DeriveMealStatus(photos []models.Photo) MealOutcome {
	if len(photos) == 0 {
		return MealOutcome{Status: models.MealDraft}
	}

	var (
		items     []models.NutrientItem
		totals    models.Totals
		succeeded bool
	)
	for _, p := range photos {
		if !p.Status.Terminal() {
			return MealOutcome{Status: models.MealDraft}
		}
		if p.Status != models.PhotoSuccess {
			continue
		}
		succeeded = true
		items = append(items, p.Items...)
		if p.Totals != nil {
			totals = totals.Add(*p.Totals)
		} else {
			totals = totals.Add(models.SumItems(p.Items))
		}
	}

	if !succeeded {
		return MealOutcome{Status: models.MealFailed}
	}
	if items == nil {
		items = []models.NutrientItem{}
	}
	return MealOutcome{Status: models.MealComplete, Items: items, Totals: totals}
}

// Finalizer applies DeriveMealStatus to stored meals and commits worker
// results through the race guard.
type Finalizer struct {
	db        *database.Client
	publisher realtime.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewFinalizer(db *database.Client, publisher realtime.Publisher, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		db:        db,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// mealChange is a meal that left DRAFT inside a transaction.
type mealChange struct {
	MealID  uuid.UUID
	OwnerID string
	Status  models.MealStatus
}

// finalizeMeal recomputes one meal inside tx. The DRAFT row is locked first so
// concurrent finalizers of the same meal serialize and read the same photo
// set. A meal already terminal is left untouched.
func finalizeMeal(ctx context.Context, tx *database.Tx, mealID uuid.UUID, now time.Time) (*mealChange, error) {
	locked, err := tx.LockDraftMeal(ctx, mealID, now)
	if err != nil {
		return nil, err
	}
	if !locked {
		if _, err := tx.GetMeal(ctx, mealID); err != nil {
			return nil, fmt.Errorf("failed to finalize meal %s: %w", mealID, err)
		}
		return nil, nil
	}

	photos, err := tx.ListMealPhotos(ctx, mealID)
	if err != nil {
		return nil, err
	}

	outcome := DeriveMealStatus(photos)
	if outcome.Status == models.MealDraft {
		return nil, nil
	}

	closed, err := tx.CloseMeal(ctx, mealID, outcome.Status, outcome.Items, outcome.Totals, now)
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, nil
	}
	return &mealChange{MealID: mealID, OwnerID: photos[0].OwnerID, Status: outcome.Status}, nil
}

// Finalize recomputes a meal's status in its own transaction and returns the
// meal's status afterwards. Safe to call redundantly and concurrently.
func (f *Finalizer) Finalize(ctx context.Context, mealID uuid.UUID) (models.MealStatus, error) {
	var change *mealChange
	err := f.db.InTx(ctx, func(tx *database.Tx) error {
		var err error
		change, err = finalizeMeal(ctx, tx, mealID, f.now())
		return err
	})
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrMealNotFound
	}
	if err != nil {
		return "", err
	}

	if change != nil {
		f.publishMeal(ctx, change)
		return change.Status, nil
	}

	meal, err := f.db.GetMeal(ctx, mealID)
	if err != nil {
		return "", err
	}
	return meal.Status, nil
}

func (f *Finalizer) publishMeal(ctx context.Context, change *mealChange) {
	f.logger.InfoContext(ctx, "meal finalized", "meal_id", change.MealID, "status", change.Status)
	f.publisher.Publish(ctx, realtime.Event{
		Type:    realtime.EventMealUpdated,
		OwnerID: change.OwnerID,
		MealID:  change.MealID.String(),
		Status:  string(change.Status),
	})
}
