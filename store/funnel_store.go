package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hotspot/api/models"
)

// PostgresFunnelStore reads funnel definitions. Funnels are created and edited
// elsewhere.
type PostgresFunnelStore struct {
	db *sql.DB
}

func NewPostgresFunnelStore(db *sql.DB) *PostgresFunnelStore {
	return &PostgresFunnelStore{db: db}
}

func (s *PostgresFunnelStore) GetFunnel(ctx context.Context, id int64) (*models.Funnel, error) {
	f := &models.Funnel{}
	var steps []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, site_id, name, steps, created_at, updated_at
		FROM funnels
		WHERE id = $1
	`, id).Scan(&f.ID, &f.SiteID, &f.Name, &steps, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("funnel %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}
	if err := json.Unmarshal(steps, &f.Steps); err != nil {
		return nil, fmt.Errorf("decode funnel steps: %w", err)
	}
	return f, nil
}
