package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"meal-photo-backend/internal/models"
)

// Client talks to the HTTP recognition proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type RecognizeRequest struct {
	ImageBase64 string `json:"image_base64"`
	ContentType string `json:"content_type"`
	Hint        string `json:"hint,omitempty"`
}

type RecognizeResponse struct {
	Items  []models.NutrientItem `json:"items"`
	Totals *models.Totals        `json:"totals,omitempty"`
}

// NewClient creates a proxy client. ratePerSecond <= 0 disables client-side
// rate limiting.
func NewClient(baseURL, apiKey string, timeout time.Duration, ratePerSecond float64) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	if ratePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return c
}

func (c *Client) Recognize(ctx context.Context, in Request) (*Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classifyTransport(err)
		}
	}

	jsonData, err := json.Marshal(RecognizeRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(in.Image),
		ContentType: in.ContentType,
		Hint:        in.Hint,
	})
	if err != nil {
		return nil, permanentError(models.ErrCodeInternal, "failed to marshal request", err)
	}

	url := strings.TrimSuffix(c.baseURL, "/") + "/v1/recognize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, permanentError(models.ErrCodeInternal, "failed to create request", err)
	}

	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var result RecognizeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, retryableError(models.ErrCodeUpstreamUnavailable, fmt.Sprintf("failed to decode response, body: %s", string(body)), err)
	}

	return finish(result.Items, result.Totals)
}
