package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/services"
)

const sweepBatch = 500

type SweeperConfig struct {
	Interval        time.Duration
	StuckPhotoAfter time.Duration
	// DraftSettleAfter is how old a DRAFT meal must be before the sweeper
	// re-runs its finalizer.
	DraftSettleAfter time.Duration
}

// SweepReport counts what one sweep found.
type SweepReport struct {
	StuckPhotos    int
	OrphanPhotos   int
	LeakedPhotos   int
	FinalizedMeals int
	NewAnomalies   int
}

// Sweeper reconciles the pipeline periodically. It flags anomalies for
// operator review and re-runs the meal finalizer; it never mutates a photo.
type Sweeper struct {
	db        *database.Client
	finalizer *services.Finalizer
	logger    *slog.Logger
	cfg       SweeperConfig
	now       func() time.Time
}

func NewSweeper(db *database.Client, finalizer *services.Finalizer, logger *slog.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.DraftSettleAfter <= 0 {
		cfg.DraftSettleAfter = 5 * time.Minute
	}
	return &Sweeper{
		db:        db,
		finalizer: finalizer,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	report := &SweepReport{}

	active, err := s.db.ListActivePhotos(ctx, sweepBatch)
	if err != nil {
		return nil, err
	}
	cutoff := now.Add(-s.cfg.StuckPhotoAfter)
	for _, photo := range active {
		if photo.UpdatedAt.After(cutoff) {
			continue
		}
		report.StuckPhotos++
		detail := fmt.Sprintf("photo %s since %s", photo.Status, photo.UpdatedAt.Format(time.RFC3339))
		if err := s.flag(ctx, report, models.AnomalyStuckPhoto, &photo, detail, now); err != nil {
			return nil, err
		}
	}

	orphans, err := s.db.ListPhotosWithoutTask(ctx, sweepBatch)
	if err != nil {
		return nil, err
	}
	for _, photo := range orphans {
		report.OrphanPhotos++
		if err := s.flag(ctx, report, models.AnomalyOrphanPhoto, &photo, "photo has no recognition task", now); err != nil {
			return nil, err
		}
	}

	leaked, err := s.db.ListLeakedPhotos(ctx, sweepBatch)
	if err != nil {
		return nil, err
	}
	for _, photo := range leaked {
		report.LeakedPhotos++
		detail := fmt.Sprintf("%s photo carries %d items", photo.Status, len(photo.Items))
		if err := s.flag(ctx, report, models.AnomalyCancelledWithItems, &photo, detail, now); err != nil {
			return nil, err
		}
	}

	drafts, err := s.db.ListDraftMealIDs(ctx, now.Add(-s.cfg.DraftSettleAfter), sweepBatch)
	if err != nil {
		return nil, err
	}
	for _, mealID := range drafts {
		status, err := s.finalizer.Finalize(ctx, mealID)
		if err != nil {
			return nil, fmt.Errorf("failed to finalize meal %s: %w", mealID, err)
		}
		if status.Terminal() {
			report.FinalizedMeals++
			s.logger.WarnContext(ctx, "sweeper finalized a draft meal", "meal_id", mealID, "status", status)
		}
	}

	if report.NewAnomalies > 0 || report.FinalizedMeals > 0 {
		s.logger.InfoContext(ctx, "sweep finished",
			"stuck", report.StuckPhotos, "orphans", report.OrphanPhotos, "leaked", report.LeakedPhotos,
			"finalized", report.FinalizedMeals, "new_anomalies", report.NewAnomalies)
	}
	return report, nil
}

func (s *Sweeper) flag(ctx context.Context, report *SweepReport, kind models.AnomalyKind, photo *models.Photo, detail string, now time.Time) error {
	fresh, err := s.db.RecordAnomaly(ctx, &models.Anomaly{
		ID:         uuid.New(),
		Kind:       kind,
		PhotoID:    photo.ID,
		MealID:     photo.MealID,
		Detail:     detail,
		DetectedAt: now,
	})
	if err != nil {
		return err
	}
	if fresh {
		report.NewAnomalies++
		s.logger.ErrorContext(ctx, "consistency anomaly",
			"kind", kind, "photo_id", photo.ID, "meal_id", photo.MealID, "detail", detail)
	}
	return nil
}
