package models

import "time"

type SubmitResponse struct {
	TaskID  string `json:"task_id"`
	MealID  string `json:"meal_id"`
	PhotoID string `json:"photo_id"`
	Status  string `json:"status"`
}

type RecognitionResult struct {
	Items  []NutrientItem `json:"items"`
	Totals Totals         `json:"totals"`
}

// TaskStatusResponse is the polling view of one photo. Status is one of
// PENDING, PROCESSING, SUCCESS or FAILED; Result is only set for SUCCESS.
type TaskStatusResponse struct {
	TaskID       string             `json:"task_id"`
	PhotoID      string             `json:"photo_id"`
	MealID       string             `json:"meal_id"`
	Status       string             `json:"status"`
	Result       *RecognitionResult `json:"result,omitempty"`
	ErrorCode    string             `json:"error_code,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type CancelResponse struct {
	Noop           bool `json:"noop"`
	CancelledTasks int  `json:"cancelled_tasks"`
	UpdatedPhotos  int  `json:"updated_photos"`
}

type MealResponse struct {
	ID         string         `json:"meal_id"`
	Date       string         `json:"date"`
	MealType   string         `json:"meal_type"`
	Status     string         `json:"status"`
	Processing bool           `json:"processing"`
	Items      []NutrientItem `json:"items"`
	Totals     *Totals        `json:"totals,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type MealListResponse struct {
	Meals []MealResponse `json:"meals"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
