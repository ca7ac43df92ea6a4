package recognition

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-photo-backend/internal/models"
)

func fastRetrier() Retrier {
	return Retrier{MaxAttempts: 3}
}

func TestClient_Recognize(t *testing.T) {
	var got RecognizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/recognize", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RecognizeResponse{
			Items: []models.NutrientItem{
				{Name: "rice", Grams: 150, Calories: 195, Carbs: 42},
				{Name: "chicken", Grams: 120, Calories: 198, Protein: 37},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "test-key", 5*time.Second, 0)
	result, err := client.Recognize(context.Background(), Request{Image: []byte("jpeg-bytes"), ContentType: "image/jpeg", Hint: "rice bowl"})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(got.ImageBase64)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(decoded))
	assert.Equal(t, "rice bowl", got.Hint)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, 393.0, result.Totals.Calories, "totals are derived when the proxy omits them")
	assert.Equal(t, 37.0, result.Totals.Protein)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retryable bool
	}{
		{"rate limited upstream", http.StatusTooManyRequests, models.ErrCodeUpstreamQuota, false},
		{"bad image", http.StatusBadRequest, models.ErrCodeInvalidImage, false},
		{"unsupported media", http.StatusUnsupportedMediaType, models.ErrCodeInvalidImage, false},
		{"content rejected", http.StatusUnprocessableEntity, models.ErrCodeContentRejected, false},
		{"gateway timeout", http.StatusGatewayTimeout, models.ErrCodeRecognitionTimeout, true},
		{"server error", http.StatusInternalServerError, models.ErrCodeUpstreamUnavailable, true},
		{"unauthorized", http.StatusUnauthorized, models.ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", 5*time.Second, 0)
			_, err := client.Recognize(context.Background(), Request{Image: []byte("x")})

			var recErr *Error
			require.ErrorAs(t, err, &recErr)
			assert.Equal(t, tt.code, recErr.Code)
			assert.Equal(t, tt.retryable, recErr.Retryable())
		})
	}
}

func TestClient_EmptyPlate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "", 5*time.Second, 0).Recognize(context.Background(), Request{Image: []byte("x")})
	assert.Equal(t, models.ErrCodeNoFoodDetected, AsError(err).Code)
	assert.False(t, IsRetryable(err))
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(server.URL, "", 50*time.Millisecond, 0).Recognize(context.Background(), Request{Image: []byte("x")})
	assert.Equal(t, models.ErrCodeRecognitionTimeout, AsError(err).Code)
	assert.True(t, IsRetryable(err))
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, "", time.Second, 0).Recognize(context.Background(), Request{Image: []byte("x")})
	assert.Equal(t, models.ErrCodeNetwork, AsError(err).Code)
	assert.True(t, IsRetryable(err))
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"items":[{"name":"apple","calories":52}],"totals":{"calories":52}}`))
	}))
	defer server.Close()

	rec := WithRetry(NewClient(server.URL, "", time.Second, 0), fastRetrier())
	result, err := rec.Recognize(context.Background(), Request{Image: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 52.0, result.Totals.Calories)
}

func TestWithRetry_NeverRetries4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	rec := WithRetry(NewClient(server.URL, "", time.Second, 0), fastRetrier())
	_, err := rec.Recognize(context.Background(), Request{Image: []byte("x")})
	assert.Equal(t, models.ErrCodeContentRejected, AsError(err).Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	rec := WithRetry(NewClient(server.URL, "", time.Second, 0), fastRetrier())
	_, err := rec.Recognize(context.Background(), Request{Image: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, models.ErrCodeUpstreamUnavailable, AsError(err).Code)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}

func TestRetryWithBackoff_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	retrier := Retrier{MaxAttempts: 5, Backoffs: []time.Duration{time.Hour}}

	calls := 0
	err := retrier.RetryWithBackoff(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return retryableError(models.ErrCodeNetwork, "down", nil)
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestAsError_WrapsUnclassified(t *testing.T) {
	err := AsError(errors.New("boom"))
	assert.Equal(t, models.ErrCodeInternal, err.Code)
	assert.False(t, err.Retryable())
}

type hangingRecognizer struct {
	calls atomic.Int32
}

func (h *hangingRecognizer) Recognize(ctx context.Context, _ Request) (*Result, error) {
	h.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithRetry_BoundsEveryAttempt(t *testing.T) {
	backend := &hangingRecognizer{}
	rec := WithRetry(backend, Retrier{MaxAttempts: 2, AttemptTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := rec.Recognize(context.Background(), Request{Image: []byte("x")})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	recErr := AsError(err)
	assert.Equal(t, models.ErrCodeRecognitionTimeout, recErr.Code)
	assert.True(t, recErr.Retryable())
	assert.Equal(t, int32(2), backend.calls.Load())
}

func TestWithRetry_CallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	rec := WithRetry(&hangingRecognizer{}, Retrier{MaxAttempts: 3, AttemptTimeout: time.Minute})
	_, err := rec.Recognize(ctx, Request{Image: []byte("x")})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotEqual(t, models.ErrCodeRecognitionTimeout, AsError(err).Code)
}

func TestDefaultRetrier(t *testing.T) {
	r := DefaultRetrier(45 * time.Second)
	assert.Equal(t, 3, r.MaxAttempts)
	assert.Len(t, r.Backoffs, r.MaxAttempts-1)
	assert.Equal(t, 45*time.Second, r.AttemptTimeout)
}
