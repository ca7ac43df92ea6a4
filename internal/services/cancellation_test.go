package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
	"meal-photo-backend/internal/realtime"
)

func TestScenario_PartialSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.submit(t, "user-1", uuid.Nil)
	second := env.submit(t, "user-1", first.MealID)
	third := env.submit(t, "user-1", first.MealID)

	require.True(t, env.succeed(t, first, models.NutrientItem{Name: "salmon", Calories: 280, Protein: 30}))
	assert.Equal(t, models.MealDraft, env.meal(t, first.MealID).Status)

	outcome, err := env.cancellation.Cancel(ctx, CancelInput{
		Token:    "cancel-a",
		OwnerID:  "user-1",
		PhotoIDs: []uuid.UUID{second.PhotoID, third.PhotoID},
		Reason:   "wrong plate",
	})
	require.NoError(t, err)
	assert.Equal(t, CancelOutcome{Noop: false, CancelledTasks: 2, UpdatedPhotos: 2}, *outcome)

	meal := env.meal(t, first.MealID)
	assert.Equal(t, models.MealComplete, meal.Status)
	require.Len(t, meal.Items, 1)
	assert.Equal(t, "salmon", meal.Items[0].Name)
	assert.Equal(t, 280.0, meal.Totals.Calories)

	listed, err := env.listing.ListMeals(ctx, "user-1", "2025-03-01")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Processing)
	assert.Len(t, listed[0].Items, 1)
}

func TestScenario_FullCancelBeforeProcessing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.submit(t, "user-1", uuid.Nil)
	second := env.submit(t, "user-1", first.MealID)

	outcome, err := env.cancellation.Cancel(ctx, CancelInput{Token: "cancel-b", OwnerID: "user-1", MealIDs: []uuid.UUID{first.MealID}})
	require.NoError(t, err)
	assert.False(t, outcome.Noop)
	assert.Equal(t, 2, outcome.UpdatedPhotos)
	assert.Equal(t, 2, outcome.CancelledTasks)

	assert.Equal(t, models.PhotoCancelled, env.photo(t, first.PhotoID).Status)
	assert.Equal(t, models.PhotoCancelled, env.photo(t, second.PhotoID).Status)
	assert.Equal(t, models.MealFailed, env.meal(t, first.MealID).Status)

	listed, err := env.listing.ListMeals(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Empty(t, listed)
	_, err = env.listing.GetMeal(ctx, "user-1", first.MealID)
	assert.ErrorIs(t, err, ErrMealNotFound)

	claimed, err := env.db.ClaimTask(ctx, env.cancellation.now(), 0)
	require.NoError(t, err)
	assert.Nil(t, claimed, "revoked tasks are never delivered")

	assert.ElementsMatch(t, []uuid.UUID{first.PhotoID, second.PhotoID}, env.revoker.revoked)
}

func TestScenario_LateResultAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.submit(t, "user-1", uuid.Nil)

	started, err := env.db.StartPhoto(ctx, res.PhotoID, env.cancellation.now())
	require.NoError(t, err)
	require.True(t, started)
	inFlight := env.photo(t, res.PhotoID)

	_, err = env.cancellation.Cancel(ctx, CancelInput{Token: "cancel-c", OwnerID: "user-1", TaskIDs: []uuid.UUID{res.TaskID}})
	require.NoError(t, err)

	committed, err := env.finalizer.CommitRecognition(ctx, inFlight, res.TaskID,
		[]models.NutrientItem{{Name: "burger", Calories: 550}}, models.Totals{Calories: 550})
	require.NoError(t, err)
	assert.False(t, committed)

	photo := env.photo(t, res.PhotoID)
	assert.Equal(t, models.PhotoCancelled, photo.Status)
	assert.Empty(t, photo.Items)
	assert.Equal(t, models.MealFailed, env.meal(t, res.MealID).Status)

	status, err := env.status.TaskStatus(ctx, "user-1", res.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", status.Status)
	assert.Equal(t, models.ErrCodeCancelled, status.ErrorCode)
	assert.Nil(t, status.Result)
}

func TestScenario_DuplicateConcurrentCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.submit(t, "user-1", uuid.Nil)
	other := env.submit(t, "user-1", uuid.Nil)

	const callers = 8
	outcomes := make([]*CancelOutcome, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = env.cancellation.Cancel(ctx, CancelInput{
				Token:    "cancel-d",
				OwnerID:  "user-1",
				PhotoIDs: []uuid.UUID{res.PhotoID, other.PhotoID},
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, CancelOutcome{Noop: false, CancelledTasks: 2, UpdatedPhotos: 2}, *outcomes[i])
	}

	count, err := env.db.CountCancelEvents(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, env.publisher.ofType("cancelled"), 2, "side effects happen once")
}

func TestCancel_ReplayReturnsStoredOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.submit(t, "user-1", uuid.Nil)

	in := CancelInput{Token: "tok", OwnerID: "user-1", PhotoIDs: []uuid.UUID{first.PhotoID}}
	original, err := env.cancellation.Cancel(ctx, in)
	require.NoError(t, err)

	later := env.submit(t, "user-1", uuid.Nil)
	in.PhotoIDs = []uuid.UUID{later.PhotoID}
	replayed, err := env.cancellation.Cancel(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, original, replayed)
	assert.Equal(t, models.PhotoPending, env.photo(t, later.PhotoID).Status, "a replay never re-executes")
}

func TestCancel_TerminalPhotoIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.submit(t, "user-1", uuid.Nil)
	require.True(t, env.succeed(t, res, models.NutrientItem{Name: "kiwi", Calories: 40}))

	outcome, err := env.cancellation.Cancel(ctx, CancelInput{Token: "late", OwnerID: "user-1", PhotoIDs: []uuid.UUID{res.PhotoID}})
	require.NoError(t, err)
	assert.Equal(t, CancelOutcome{Noop: true}, *outcome)
	assert.Equal(t, models.PhotoSuccess, env.photo(t, res.PhotoID).Status)
	assert.Equal(t, models.MealComplete, env.meal(t, res.MealID).Status)

	event, err := env.db.GetCancelEvent(ctx, "late")
	require.NoError(t, err)
	assert.True(t, event.Noop)
}

func TestCancel_UnknownTargetsAreNoop(t *testing.T) {
	env := newTestEnv(t)
	outcome, err := env.cancellation.Cancel(context.Background(), CancelInput{
		Token: "nothing-yet", OwnerID: "user-1", PhotoIDs: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Noop)
	assert.Zero(t, outcome.UpdatedPhotos)
}

func TestCancel_ForeignTargetRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.submit(t, "user-1", uuid.Nil)

	_, err := env.cancellation.Cancel(ctx, CancelInput{Token: "steal", OwnerID: "user-2", PhotoIDs: []uuid.UUID{res.PhotoID}})
	assert.ErrorIs(t, err, ErrForbiddenTarget)

	_, err = env.db.GetCancelEvent(ctx, "steal")
	assert.ErrorIs(t, err, database.ErrNotFound, "a rejected request records no event")
	assert.Equal(t, models.PhotoPending, env.photo(t, res.PhotoID).Status)
}

func TestCancel_TokenOfAnotherOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.cancellation.Cancel(ctx, CancelInput{Token: "shared", OwnerID: "user-1"})
	require.NoError(t, err)

	_, err = env.cancellation.Cancel(ctx, CancelInput{Token: "shared", OwnerID: "user-2"})
	assert.ErrorIs(t, err, ErrTokenConflict)
}

func TestCancel_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.cancellation.Cancel(ctx, CancelInput{OwnerID: "user-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.cancellation.Cancel(ctx, CancelInput{Token: fmt.Sprintf("%0300d", 1), OwnerID: "user-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCancel_DoesNotWaitOnSlowSubscribers(t *testing.T) {
	env := newTestEnv(t)
	res := env.submit(t, "user-1", uuid.Nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := realtime.NewQueue("slow", stalledPublisher{delay: 3 * time.Second}, realtime.DefaultQueueSize, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.Run(ctx) }()
	cancellation := NewCancellation(env.db, env.revoker, queue, logger)

	start := time.Now()
	outcome, err := cancellation.Cancel(context.Background(), CancelInput{
		Token: "slow-subscribers", OwnerID: "user-1", PhotoIDs: []uuid.UUID{res.PhotoID},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, outcome.UpdatedPhotos)
	assert.Equal(t, models.PhotoCancelled, env.photo(t, res.PhotoID).Status)
}
