package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"meal-photo-backend/internal/realtime"
)

// RealtimeClient publishes events through the Supabase Realtime broadcast
// REST endpoint. Each owner has a private topic user:{owner_id}.
type RealtimeClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type broadcastMessage struct {
	Topic   string         `json:"topic"`
	Event   string         `json:"event"`
	Payload realtime.Event `json:"payload"`
}

type broadcastRequest struct {
	Messages []broadcastMessage `json:"messages"`
}

func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	return &RealtimeClient{
		baseURL: strings.TrimSuffix(supabaseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: slog.Default().With("component", "supabase_realtime"),
	}
}

func UserTopic(ownerID string) string {
	return fmt.Sprintf("user:%s", ownerID)
}

// Publish implements realtime.Publisher. Failures are logged, never returned.
func (r *RealtimeClient) Publish(ctx context.Context, ev realtime.Event) {
	if err := r.PublishEvent(ctx, UserTopic(ev.OwnerID), ev); err != nil {
		r.logger.WarnContext(ctx, "failed to broadcast event", "type", ev.Type, "owner_id", ev.OwnerID, "error", err)
	}
}

func (r *RealtimeClient) PublishEvent(ctx context.Context, topic string, ev realtime.Event) error {
	jsonData, err := json.Marshal(broadcastRequest{
		Messages: []broadcastMessage{{Topic: topic, Event: ev.Type, Payload: ev}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/realtime/v1/api/broadcast", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("broadcast failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}
