package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"meal-photo-backend/internal/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// nullJSON encodes v for a JSON column; nil slices and pointers become NULL.
// The value is passed as a string because lib/pq sends []byte as bytea.
func nullJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case []models.NutrientItem:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *models.Totals:
		if t == nil {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeItems(raw []byte) ([]models.NutrientItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []models.NutrientItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func decodeTotals(raw []byte) (*models.Totals, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var totals models.Totals
	if err := json.Unmarshal(raw, &totals); err != nil {
		return nil, fmt.Errorf("failed to decode totals: %w", err)
	}
	return &totals, nil
}

func encodeIDs(ids []uuid.UUID) (string, error) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode ids: %w", err)
	}
	return string(data), nil
}

func decodeIDs(raw []byte) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(raw) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode ids: %w", err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
