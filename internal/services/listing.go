package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"meal-photo-backend/internal/database"
	"meal-photo-backend/internal/models"
)

// Listing is the diary view of meals. FAILED meals never appear in it.
type Listing struct {
	db *database.Client
}

func NewListing(db *database.Client) *Listing {
	return &Listing{db: db}
}

func (l *Listing) ListMeals(ctx context.Context, ownerID, date string) ([]models.MealResponse, error) {
	if date != "" {
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}

	meals, err := l.db.ListVisibleMeals(ctx, ownerID, date)
	if err != nil {
		return nil, err
	}

	out := make([]models.MealResponse, 0, len(meals))
	for i := range meals {
		if meals[i].Status == models.MealFailed {
			continue
		}
		out = append(out, ProjectMeal(&meals[i]))
	}
	return out, nil
}

func (l *Listing) GetMeal(ctx context.Context, ownerID string, mealID uuid.UUID) (*models.MealResponse, error) {
	meal, err := l.db.GetMeal(ctx, mealID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrMealNotFound
	}
	if err != nil {
		return nil, err
	}
	if meal.OwnerID != ownerID || meal.Status == models.MealFailed {
		return nil, ErrMealNotFound
	}
	resp := ProjectMeal(meal)
	return &resp, nil
}

// ProjectMeal maps a visible meal. DRAFT meals carry no items and are marked
// processing.
func ProjectMeal(meal *models.Meal) models.MealResponse {
	resp := models.MealResponse{
		ID:        meal.ID.String(),
		Date:      meal.Date,
		MealType:  meal.MealType,
		Status:    string(meal.Status),
		Items:     []models.NutrientItem{},
		CreatedAt: meal.CreatedAt,
		UpdatedAt: meal.UpdatedAt,
	}
	if meal.Status == models.MealDraft {
		resp.Processing = true
		return resp
	}
	if meal.Items != nil {
		resp.Items = meal.Items
	}
	totals := meal.Totals
	resp.Totals = &totals
	return resp
}
