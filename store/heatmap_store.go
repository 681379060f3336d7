package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotspot/api/models"
)

type PostgresHeatmapStore struct {
	db *sql.DB
}

func NewPostgresHeatmapStore(db *sql.DB) *PostgresHeatmapStore {
	return &PostgresHeatmapStore{db: db}
}

// ReplaceHeatmap upserts on the full key, so the previous result for the key
// is overwritten rather than merged.
func (s *PostgresHeatmapStore) ReplaceHeatmap(ctx context.Context, result *models.HeatmapResult, generatedAt time.Time) error {
	points := result.Points
	if points == nil {
		points = []models.HeatmapPoint{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode heatmap points: %w", err)
	}

	k := result.Key
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO heatmap_data (
			site_id, page_url, heatmap_type, device_type, date_range_start, date_range_end,
			data, max_value, session_count, total_events, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (site_id, page_url, heatmap_type, device_type, date_range_start, date_range_end)
		DO UPDATE SET
			data = EXCLUDED.data,
			max_value = EXCLUDED.max_value,
			session_count = EXCLUDED.session_count,
			total_events = EXCLUDED.total_events,
			generated_at = EXCLUDED.generated_at
	`, k.SiteID, k.PageURL, string(k.Kind), k.DeviceType, k.RangeStart, k.RangeEnd,
		data, result.Max, result.SessionCount, result.TotalEvents, generatedAt)
	if err != nil {
		return fmt.Errorf("failed to store heatmap: %w", err)
	}
	return nil
}

func (s *PostgresHeatmapStore) GetHeatmap(ctx context.Context, key models.HeatmapKey) (*models.HeatmapResult, error) {
	result := &models.HeatmapResult{Key: key}
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data, max_value, session_count, total_events
		FROM heatmap_data
		WHERE site_id = $1 AND page_url = $2 AND heatmap_type = $3 AND device_type = $4
			AND date_range_start = $5 AND date_range_end = $6
	`, key.SiteID, key.PageURL, string(key.Kind), key.DeviceType, key.RangeStart, key.RangeEnd).Scan(
		&data,
		&result.Max,
		&result.SessionCount,
		&result.TotalEvents,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("heatmap: %w", models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get heatmap: %w", err)
	}
	if err := json.Unmarshal(data, &result.Points); err != nil {
		return nil, fmt.Errorf("decode heatmap points: %w", err)
	}
	return result, nil
}
