package database

import (
	"context"
	"fmt"

	"meal-photo-backend/internal/models"
)

// RecordAnomaly stores an anomaly once per (kind, photo). It reports whether
// the anomaly is new.
func (q queries) RecordAnomaly(ctx context.Context, a *models.Anomaly) (bool, error) {
	n, err := q.exec(ctx, `
		INSERT INTO consistency_anomalies (id, kind, photo_id, meal_id, detail, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, photo_id) DO NOTHING
	`, a.ID, string(a.Kind), a.PhotoID, a.MealID, a.Detail, a.DetectedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record anomaly: %w", err)
	}
	return n == 1, nil
}

func (q queries) ListAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error) {
	rows, err := q.query(ctx, `
		SELECT id, kind, photo_id, meal_id, detail, detected_at
		FROM consistency_anomalies
		ORDER BY detected_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var kind string
		if err := rows.Scan(&a.ID, &kind, &a.PhotoID, &a.MealID, &a.Detail, &a.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Kind = models.AnomalyKind(kind)
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}
