package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hotspot/api/models"
)

// PostgresSiteStore reads the sites table maintained by the tenant service.
type PostgresSiteStore struct {
	db *sql.DB
}

func NewPostgresSiteStore(db *sql.DB) *PostgresSiteStore {
	return &PostgresSiteStore{db: db}
}

const siteColumns = `id, owner_id, name, domain, tracking_id, settings, created_at`

func scanSite(row interface{ Scan(...any) error }) (*models.Site, error) {
	site := &models.Site{}
	var settings []byte
	if err := row.Scan(
		&site.ID,
		&site.OwnerID,
		&site.Name,
		&site.Domain,
		&site.TrackingID,
		&settings,
		&site.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &site.Settings); err != nil {
			return nil, fmt.Errorf("decode site settings: %w", err)
		}
	}
	return site, nil
}

func (s *PostgresSiteStore) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("site %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

func (s *PostgresSiteStore) GetSiteByTrackingID(ctx context.Context, trackingID string) (*models.Site, error) {
	key, err := uuid.Parse(strings.TrimSpace(trackingID))
	if err != nil {
		return nil, fmt.Errorf("tracking id %q: %w", trackingID, models.ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE tracking_id = $1`, key)
	site, err := scanSite(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tracking id %q: %w", trackingID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get site by tracking id: %w", err)
	}
	return site, nil
}

func (s *PostgresSiteStore) ListSitesByOwner(ctx context.Context, ownerID string) ([]models.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}
