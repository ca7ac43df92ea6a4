package recognition

import (
	"context"
	"fmt"

	"meal-photo-backend/internal/config"
	"meal-photo-backend/internal/models"
)

// Request is one normalized image plus the user's optional free-text hint.
type Request struct {
	Image       []byte
	ContentType string
	Hint        string
}

type Result struct {
	Items  []models.NutrientItem
	Totals models.Totals
}

// Recognizer turns an image into recognized items. Implementations hold no
// per-request state and return *Error for classified failures.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (*Result, error)
}

// New builds the configured backend wrapped in the standard retry policy.
func New(ctx context.Context, cfg *config.Config) (Recognizer, error) {
	var backend Recognizer
	switch cfg.RecognitionBackend {
	case "proxy":
		backend = NewClient(cfg.RecognitionBaseURL, cfg.RecognitionAPIKey, cfg.RecognitionTimeout, cfg.RecognitionRateLimit)
	case "vertex":
		gemini, err := NewGemini(ctx, GeminiConfig{
			ProjectID:       cfg.VertexProjectID,
			Location:        cfg.VertexLocation,
			Model:           cfg.VertexModel,
			CredentialsFile: cfg.VertexCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini recognizer: %w", err)
		}
		backend = gemini
	default:
		return nil, fmt.Errorf("unsupported recognition backend: %s", cfg.RecognitionBackend)
	}
	return WithRetry(backend, DefaultRetrier(cfg.RecognitionTimeout)), nil
}

// finish validates a decoded result. An empty plate is a permanent failure.
func finish(items []models.NutrientItem, totals *models.Totals) (*Result, error) {
	if len(items) == 0 {
		return nil, permanentError(models.ErrCodeNoFoodDetected, "no food detected in photo", nil)
	}
	result := &Result{Items: items, Totals: models.SumItems(items)}
	if totals != nil {
		result.Totals = *totals
	}
	return result, nil
}
