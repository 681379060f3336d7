// api/store/event_store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotspot/api/database"
	"hotspot/api/models"
)

// ClickHouseEventStore keeps the raw interaction stream in ClickHouse.
type ClickHouseEventStore struct {
	DB  *database.ClickHouseClient
	log *zap.Logger
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient, log *zap.Logger) *ClickHouseEventStore {
	return &ClickHouseEventStore{
		DB:  chClient,
		log: log,
	}
}

// InsertEvents writes the batch as one ClickHouse block. Any append failure
// aborts the block so a batch is never partially stored.
func (s *ClickHouseEventStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Column order must match the interaction_events table.
	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO interaction_events (
			event_id, session_id, site_id, device_type, event_type, timestamp, page_url, event_data
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		data, err := json.Marshal(event.Data)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to encode event data (EventID: %s): %w", event.EventID, err)
		}
		err = batch.Append(
			event.EventID,
			event.SessionID,
			event.SiteID,
			event.DeviceType,
			string(event.EventType),
			event.Timestamp,
			event.PageURL,
			string(data),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event to batch (EventID: %s): %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.log.Debug("Inserted interaction events", zap.Int("count", len(events)))
	return nil
}

func buildEventWhere(filter EventFilter) (string, []any) {
	var clauses []string
	var args []any

	if len(filter.SiteIDs) > 0 {
		clauses = append(clauses, "site_id IN (?)")
		args = append(args, filter.SiteIDs)
	}
	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		clauses = append(clauses, "event_type IN (?)")
		args = append(args, types)
	}
	if filter.DeviceType != "" {
		clauses = append(clauses, "device_type = ?")
		args = append(args, filter.DeviceType)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until)
	}
	if filter.PageContains != "" {
		clauses = append(clauses, "positionCaseInsensitiveUTF8(page_url, ?) > 0")
		args = append(args, filter.PageContains)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (s *ClickHouseEventStore) StreamEvents(ctx context.Context, filter EventFilter, fn func(*models.Event) error) error {
	where, args := buildEventWhere(filter)
	query := fmt.Sprintf(`
		SELECT event_id, session_id, site_id, device_type, event_type, timestamp, page_url, event_data
		FROM interaction_events
		%s
		ORDER BY timestamp ASC, event_id ASC
	`, where)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			event     models.Event
			eventType string
			data      string
		)
		if err := rows.Scan(
			&event.EventID,
			&event.SessionID,
			&event.SiteID,
			&event.DeviceType,
			&eventType,
			&event.Timestamp,
			&event.PageURL,
			&data,
		); err != nil {
			return fmt.Errorf("failed to scan event row: %w", err)
		}
		event.EventType = models.EventType(eventType)
		if data != "" {
			if err := json.Unmarshal([]byte(data), &event.Data); err != nil {
				// Payloads are never enforced; an unreadable one just carries no fields.
				s.log.Warn("Unreadable event payload", zap.String("event_id", event.EventID), zap.Error(err))
				event.Data = nil
			}
		}
		if err := fn(&event); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("row error during event stream: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) TopPages(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.TopPathResult, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT page_url, uniqExact(session_id) AS session_count
		FROM interaction_events
		WHERE event_type = 'page_view' AND site_id IN (?) AND timestamp >= ?
		GROUP BY page_url
		ORDER BY session_count DESC, page_url ASC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, siteIDs, since, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query top pages: %w", err)
	}
	defer rows.Close()

	var results []models.TopPathResult
	for rows.Next() {
		var pageURL string
		var count uint64
		if err := rows.Scan(&pageURL, &count); err != nil {
			return nil, fmt.Errorf("failed to scan top page row: %w", err)
		}
		results = append(results, models.TopPathResult{
			PageURL: pageURL,
			Count:   count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top pages: %w", err)
	}

	return results, nil
}

func (s *ClickHouseEventStore) FirstPageView(ctx context.Context, sessionID string) (string, bool, error) {
	var pageURL string
	err := s.DB.Conn.QueryRow(ctx, `
		SELECT page_url
		FROM interaction_events
		WHERE session_id = ? AND event_type = 'page_view'
		ORDER BY timestamp ASC
		LIMIT 1
	`, sessionID).Scan(&pageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query first page view: %w", err)
	}
	return pageURL, true, nil
}

func (s *ClickHouseEventStore) DistinctPages(ctx context.Context, siteID int64, eventType models.EventType, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Conn.Query(ctx, `
		SELECT DISTINCT page_url
		FROM interaction_events
		WHERE site_id = ? AND event_type = ?
		LIMIT ?
	`, siteID, string(eventType), uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct pages: %w", err)
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var page string
		if err := rows.Scan(&page); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}
