package supabase

import (
	"fmt"

	"github.com/supabase-community/supabase-go"

	"meal-photo-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// PhotoStorage returns a photo store backed by the configured bucket.
func (c *Client) PhotoStorage() *StorageClient {
	return NewStorageClient(c.Supabase.Storage, c.Config.SupabaseStorageBucket)
}

// Broadcaster returns a realtime publisher for the project.
func (c *Client) Broadcaster() *RealtimeClient {
	return NewRealtimeClient(c.Config.SupabaseURL, c.Config.SupabasePublishableKey)
}
