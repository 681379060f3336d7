package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"hotspot/api/models"
)

type PostgresRecordingStore struct {
	db *sql.DB
}

func NewPostgresRecordingStore(db *sql.DB) *PostgresRecordingStore {
	return &PostgresRecordingStore{db: db}
}

func (s *PostgresRecordingStore) getRecording(ctx context.Context, where string, arg any) (*models.Recording, error) {
	r := &models.Recording{}
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT recording_id, session_id, duration, event_count, recording_data,
			has_errors, has_rage_clicks, created_at, updated_at
		FROM recordings
		WHERE `+where, arg).Scan(
		&r.RecordingID,
		&r.SessionID,
		&r.Duration,
		&r.EventCount,
		&data,
		&r.HasErrors,
		&r.HasRageClicks,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &r.Events); err != nil {
		return nil, fmt.Errorf("decode recording timeline: %w", err)
	}
	return r, nil
}

func (s *PostgresRecordingStore) GetRecording(ctx context.Context, recordingID string) (*models.Recording, error) {
	r, err := s.getRecording(ctx, "recording_id = $1", recordingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recording %s: %w", recordingID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return r, nil
}

func (s *PostgresRecordingStore) GetRecordingBySession(ctx context.Context, sessionID string) (*models.Recording, error) {
	key, err := sessionKey(sessionID)
	if err != nil {
		return nil, fmt.Errorf("recording for session %s: %w", sessionID, models.ErrNotFound)
	}
	r, err := s.getRecording(ctx, "session_id = $1", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recording for session %s: %w", sessionID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return r, nil
}

// SaveRecording writes the whole row in one statement, so a failed save
// leaves the previous timeline untouched.
func (s *PostgresRecordingStore) SaveRecording(ctx context.Context, r *models.Recording) error {
	events := r.Events
	if events == nil {
		events = []json.RawMessage{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode recording timeline: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recordings (
			session_id, recording_id, duration, event_count, recording_data,
			has_errors, has_rage_clicks, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			duration = EXCLUDED.duration,
			event_count = EXCLUDED.event_count,
			recording_data = EXCLUDED.recording_data,
			has_errors = EXCLUDED.has_errors,
			has_rage_clicks = EXCLUDED.has_rage_clicks,
			updated_at = EXCLUDED.updated_at
	`, r.SessionID, r.RecordingID, r.Duration, r.EventCount, data,
		r.HasErrors, r.HasRageClicks, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	return nil
}

func (s *PostgresRecordingStore) ListRecordings(ctx context.Context, siteIDs []int64, since time.Time, limit int) ([]models.RecordingSummary, error) {
	query := `
		SELECT r.recording_id, r.session_id, s.user_identifier, r.duration, r.event_count,
			r.has_errors, r.has_rage_clicks, r.created_at
		FROM recordings r
		JOIN sessions s ON s.id = r.session_id
		WHERE s.site_id = ANY($1) AND r.created_at >= $2
		ORDER BY r.created_at DESC, r.recording_id
	`
	args := []any{pq.Array(siteIDs), since}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var out []models.RecordingSummary
	for rows.Next() {
		var (
			sum  models.RecordingSummary
			user sql.NullString
		)
		if err := rows.Scan(
			&sum.RecordingID,
			&sum.SessionID,
			&user,
			&sum.Duration,
			&sum.EventCount,
			&sum.HasErrors,
			&sum.HasRageClicks,
			&sum.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		if user.Valid {
			sum.UserIdentifier = &user.String
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
