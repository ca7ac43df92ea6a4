package models

type CancelRequest struct {
	// IdempotencyKey may also be sent as the Idempotency-Key header.
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	PhotoIDs       []string `json:"photo_ids,omitempty"`
	MealIDs        []string `json:"meal_ids,omitempty"`
	TaskIDs        []string `json:"task_ids,omitempty"`
	Reason         string   `json:"reason,omitempty" example:"user_cancelled"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
