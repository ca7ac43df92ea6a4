package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type PhotoStatus string

const (
	PhotoPending    PhotoStatus = "PENDING"
	PhotoProcessing PhotoStatus = "PROCESSING"
	PhotoSuccess    PhotoStatus = "SUCCESS"
	PhotoFailed     PhotoStatus = "FAILED"
	PhotoCancelled  PhotoStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s PhotoStatus) Terminal() bool {
	return s == PhotoSuccess || s == PhotoFailed || s == PhotoCancelled
}

type MealStatus string

const (
	MealDraft    MealStatus = "DRAFT"
	MealComplete MealStatus = "COMPLETE"
	MealFailed   MealStatus = "FAILED"
)

func (s MealStatus) Terminal() bool {
	return s == MealComplete || s == MealFailed
}

type TaskStatus string

const (
	TaskQueued  TaskStatus = "QUEUED"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskRevoked TaskStatus = "REVOKED"
)

// Meal types accepted on submission.
var MealTypes = []string{"breakfast", "lunch", "dinner", "snack"}

// Stable photo error codes surfaced through the task status endpoint.
const (
	ErrCodeRecognitionTimeout  = "RECOGNITION_TIMEOUT"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeNetwork             = "NETWORK_ERROR"
	ErrCodeInvalidImage        = "INVALID_IMAGE"
	ErrCodeContentRejected     = "CONTENT_REJECTED"
	ErrCodeUpstreamQuota       = "UPSTREAM_QUOTA"
	ErrCodeNoFoodDetected      = "NO_FOOD_DETECTED"
	ErrCodeDeliveryExhausted   = "DELIVERY_EXHAUSTED"
	ErrCodeCancelled           = "CANCELLED"
	ErrCodeInternal            = "INTERNAL"
)

// NutrientItem is one recognized food on a plate.
type NutrientItem struct {
	Name       string  `json:"name"`
	Grams      float64 `json:"grams"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Fiber      float64 `json:"fiber,omitempty"`
	Sugar      float64 `json:"sugar,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Totals sums the macronutrients of a set of items.
type Totals struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
	Sugar    float64 `json:"sugar"`
}

func (t Totals) Add(o Totals) Totals {
	return Totals{
		Calories: t.Calories + o.Calories,
		Protein:  t.Protein + o.Protein,
		Carbs:    t.Carbs + o.Carbs,
		Fat:      t.Fat + o.Fat,
		Fiber:    t.Fiber + o.Fiber,
		Sugar:    t.Sugar + o.Sugar,
	}
}

// SumItems computes totals from item-level values.
func SumItems(items []NutrientItem) Totals {
	var t Totals
	for _, it := range items {
		t = t.Add(Totals{
			Calories: it.Calories,
			Protein:  it.Protein,
			Carbs:    it.Carbs,
			Fat:      it.Fat,
			Fiber:    it.Fiber,
			Sugar:    it.Sugar,
		})
	}
	return t
}

type Meal struct {
	ID        uuid.UUID
	OwnerID   string
	Date      string // YYYY-MM-DD
	MealType  string
	Status    MealStatus
	Items     []NutrientItem
	Totals    Totals
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Photo struct {
	ID           uuid.UUID
	MealID       uuid.UUID
	OwnerID      string
	Status       PhotoStatus
	ErrorCode    sql.NullString
	ErrorMessage sql.NullString
	Hint         string
	StoragePath  string
	ContentType  string
	Items        []NutrientItem
	Totals       *Totals
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RecognitionTask struct {
	ID             uuid.UUID
	PhotoID        uuid.UUID
	Status         TaskStatus
	Deliveries     int
	LeaseExpiresAt int64 // unix millis
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CancelEvent is the idempotency record of one cancellation request.
type CancelEvent struct {
	Token          string
	OwnerID        string
	PhotoIDs       []uuid.UUID
	MealIDs        []uuid.UUID
	TaskIDs        []uuid.UUID
	Reason         string
	Noop           bool
	CancelledTasks int
	UpdatedPhotos  int
	CreatedAt      time.Time
}

type AnomalyKind string

const (
	AnomalyStuckPhoto         AnomalyKind = "STUCK_PHOTO"
	AnomalyOrphanPhoto        AnomalyKind = "ORPHAN_PHOTO"
	AnomalyCancelledWithItems AnomalyKind = "CANCELLED_WITH_ITEMS"
)

type Anomaly struct {
	ID         uuid.UUID
	Kind       AnomalyKind
	PhotoID    uuid.UUID
	MealID     uuid.UUID
	Detail     string
	DetectedAt time.Time
}
