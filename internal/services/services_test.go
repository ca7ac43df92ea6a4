package services

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/database/databasetest"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
	"meal-photo-backend/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) ofType(eventType string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, ev := range p.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

type countingNotifier struct{ n atomic.Int32 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type recordingRevoker struct {
	mu      sync.Mutex
	revoked []uuid.UUID
}

func (r *recordingRevoker) Revoke(photoID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, photoID)
	return true
}

type testEnv struct {
	db           *database.Client
	store        *storage.Memory
	publisher    *recordingPublisher
	notifier     *countingNotifier
	revoker      *recordingRevoker
	submission   *Submission
	finalizer    *Finalizer
	cancellation *Cancellation
	status       *StatusService
	listing      *Listing
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := databasetest.New(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		db:        db,
		store:     storage.NewMemory(),
		publisher: &recordingPublisher{},
		notifier:  &countingNotifier{},
		revoker:   &recordingRevoker{},
	}
	env.submission = NewSubmission(db, env.store, env.notifier, env.publisher, logger, SubmissionConfig{
		DailyPhotoLimit: 50,
		MaxUploadBytes:  1 << 20,
	})
	env.finalizer = NewFinalizer(db, env.publisher, logger)
	env.cancellation = NewCancellation(db, env.revoker, env.publisher, logger)
	env.status = NewStatusService(db, logger)
	env.listing = NewListing(db)
	return env
}

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func (e *testEnv) submit(t *testing.T, owner string, mealID uuid.UUID) *SubmitResult {
	t.Helper()
	res, err := e.submission.Submit(context.Background(), SubmitInput{
		OwnerID:  owner,
		Image:    testImage(t),
		Date:     "2025-03-01",
		MealType: "lunch",
		MealID:   mealID,
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) photo(t *testing.T, id uuid.UUID) *models.Photo {
	t.Helper()
	photo, err := e.db.GetPhoto(context.Background(), id)
	require.NoError(t, err)
	return photo
}

func (e *testEnv) meal(t *testing.T, id uuid.UUID) *models.Meal {
	t.Helper()
	meal, err := e.db.GetMeal(context.Background(), id)
	require.NoError(t, err)
	return meal
}

func (e *testEnv) succeed(t *testing.T, res *SubmitResult, items ...models.NutrientItem) bool {
	t.Helper()
	ok, err := e.finalizer.CommitRecognition(context.Background(), e.photo(t, res.PhotoID), res.TaskID, items, models.SumItems(items))
	require.NoError(t, err)
	return ok
}
