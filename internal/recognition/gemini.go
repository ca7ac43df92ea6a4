package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"meal-photo-backend/internal/models"
)

type GeminiConfig struct {
	ProjectID       string
	Location        string
	Model           string
	CredentialsFile string
}

// Gemini recognizes meals directly with a Vertex AI Gemini model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

const mealPrompt = `Identify every food item on the plate in this photo and estimate its portion.
For each item give grams, calories, protein, carbs, fat, fiber and sugar (grams for macros, kcal for calories)
and a confidence between 0 and 1.

Respond with a JSON object with exactly one of "error" or "success" populated:
{
	"error": {
		"error_reason": "string",
		"no_food": boolean
	},
	"success": {
		"items": [
			{"name": "string", "grams": number, "calories": number, "protein": number, "carbs": number,
			 "fat": number, "fiber": number, "sugar": number, "confidence": number}
		]
	}
}
Set "no_food" to true when the photo does not show any food.`

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	opts := []option.ClientOption{}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Recognize(ctx context.Context, in Request) (*Result, error) {
	prompt := mealPrompt
	if in.Hint != "" {
		prompt += "\nThe user describes the meal as: " + in.Hint
	}

	img := genai.Blob{MIMEType: in.ContentType, Data: in.Image}
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt), img)
	if err != nil {
		return nil, classifyGemini(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, retryableError(models.ErrCodeUpstreamUnavailable, "no content in model response", nil)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return parseGeminiOutput(text.String())
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

type geminiOutput struct {
	Error *struct {
		ErrorReason string `json:"error_reason"`
		NoFood      bool   `json:"no_food"`
	} `json:"error"`
	Success *struct {
		Items []models.NutrientItem `json:"items"`
	} `json:"success"`
}

func parseGeminiOutput(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(text, "```")

	var out geminiOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, retryableError(models.ErrCodeUpstreamUnavailable, "failed to parse model response", err)
	}

	if out.Error != nil && out.Error.ErrorReason != "" {
		if out.Error.NoFood {
			return nil, permanentError(models.ErrCodeNoFoodDetected, out.Error.ErrorReason, nil)
		}
		return nil, permanentError(models.ErrCodeContentRejected, out.Error.ErrorReason, nil)
	}
	if out.Success == nil {
		return nil, retryableError(models.ErrCodeUpstreamUnavailable, "missing success object in model response", nil)
	}
	return finish(out.Success.Items, nil)
}

func classifyGemini(err error) *Error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return permanentError(models.ErrCodeContentRejected, "model blocked the request", err)
	}

	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return retryableError(models.ErrCodeRecognitionTimeout, "recognition timed out", err)
	case codes.Unavailable, codes.Internal, codes.Aborted:
		return retryableError(models.ErrCodeUpstreamUnavailable, "model unavailable", err)
	case codes.ResourceExhausted:
		return permanentError(models.ErrCodeUpstreamQuota, "model quota exhausted", err)
	case codes.InvalidArgument:
		return permanentError(models.ErrCodeInvalidImage, "model rejected the image", err)
	case codes.Unknown:
		return classifyTransport(err)
	default:
		return permanentError(models.ErrCodeInternal, "model call failed", err)
	}
}
