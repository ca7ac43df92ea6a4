package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"meal-photo-backend/internal/models"
)

const mealColumns = `id, owner_id, meal_date, meal_type, status, items, totals, created_at, updated_at`

func scanMeal(row rowScanner) (*models.Meal, error) {
	var meal models.Meal
	var status string
	var items, totals []byte
	err := row.Scan(
		&meal.ID, &meal.OwnerID, &meal.Date, &meal.MealType, &status,
		&items, &totals, &meal.CreatedAt, &meal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	meal.Status = models.MealStatus(status)
	if meal.Items, err = decodeItems(items); err != nil {
		return nil, err
	}
	t, err := decodeTotals(totals)
	if err != nil {
		return nil, err
	}
	if t != nil {
		meal.Totals = *t
	}
	return &meal, nil
}

func (q queries) CreateMeal(ctx context.Context, meal *models.Meal) error {
	_, err := q.exec(ctx, `
		INSERT INTO meals (id, owner_id, meal_date, meal_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, meal.ID, meal.OwnerID, meal.Date, meal.MealType, string(meal.Status), meal.CreatedAt, meal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create meal: %w", err)
	}
	return nil
}

func (q queries) GetMeal(ctx context.Context, mealID uuid.UUID) (*models.Meal, error) {
	meal, err := scanMeal(q.queryRow(ctx, `SELECT `+mealColumns+` FROM meals WHERE id = $1`, mealID))
	if err != nil {
		return nil, notFound(err, "meal")
	}
	return meal, nil
}

// LockDraftMeal touches a DRAFT meal so the row stays locked until the
// surrounding transaction ends. It reports false when the meal is no longer
// DRAFT.
func (q queries) LockDraftMeal(ctx context.Context, mealID uuid.UUID, now time.Time) (bool, error) {
	n, err := q.exec(ctx, `
		UPDATE meals
		SET updated_at = $2
		WHERE id = $1 AND status = 'DRAFT'
	`, mealID, now)
	if err != nil {
		return false, fmt.Errorf("failed to lock meal: %w", err)
	}
	return n == 1, nil
}

// CloseMeal writes a terminal outcome. A meal that already left DRAFT is
// never rewritten.
func (q queries) CloseMeal(ctx context.Context, mealID uuid.UUID, status models.MealStatus, items []models.NutrientItem, totals models.Totals, now time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("cannot close meal with status %s", status)
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
		UPDATE meals
		SET status = $2, items = $3, totals = $4, updated_at = $5
		WHERE id = $1 AND status = 'DRAFT'
	`, mealID, string(status), itemsJSON, totalsJSON, now)
	if err != nil {
		return false, fmt.Errorf("failed to close meal: %w", err)
	}
	return n == 1, nil
}

// ListVisibleMeals returns the owner's DRAFT and COMPLETE meals, newest first.
// FAILED meals are never listed. An empty date lists every day.
func (q queries) ListVisibleMeals(ctx context.Context, ownerID, date string) ([]models.Meal, error) {
	rows, err := q.query(ctx, `
		SELECT `+mealColumns+`
		FROM meals
		WHERE owner_id = $1 AND status <> 'FAILED' AND ($2 = '' OR meal_date = $2)
		ORDER BY meal_date DESC, created_at DESC
	`, ownerID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	var meals []models.Meal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		meals = append(meals, *meal)
	}
	return meals, rows.Err()
}

// ListDraftMealIDs returns DRAFT meals created before cutoff, oldest first.
// Times are stored in UTC, so the comparison also holds for SQLite's
// text-encoded timestamps.
func (q queries) ListDraftMealIDs(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.query(ctx, `
		SELECT id FROM meals
		WHERE status = 'DRAFT' AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft meals: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan meal id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
