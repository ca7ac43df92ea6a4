package supabase

import (
	"bytes"
	"context"
	"fmt"

	storage "github.com/supabase-community/storage-go"
)

// StorageClient stores meal photos in a Supabase Storage bucket.
type StorageClient struct {
	client *storage.Client
	bucket string
}

func NewStorageClient(client *storage.Client, bucket string) *StorageClient {
	return &StorageClient{client: client, bucket: bucket}
}

func (s *StorageClient) Put(_ context.Context, path string, data []byte, contentType string) error {
	upsert := true
	_, err := s.client.UploadFile(s.bucket, path, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

func (s *StorageClient) Get(_ context.Context, path string) ([]byte, error) {
	data, err := s.client.DownloadFile(s.bucket, path)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	return data, nil
}
