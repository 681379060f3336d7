package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"hotspot/api/models"
)

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const sessionColumns = `id, site_id, user_identifier, device_type, browser, os, location, viewport, tags,
	started_at, ended_at, last_activity_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	s := &models.Session{}
	var (
		userIdentifier sql.NullString
		location       []byte
		viewport       []byte
		tags           []byte
		endedAt        sql.NullTime
		lastActivityAt sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.SiteID,
		&userIdentifier,
		&s.DeviceType,
		&s.Browser,
		&s.OS,
		&location,
		&viewport,
		&tags,
		&s.StartedAt,
		&endedAt,
		&lastActivityAt,
	); err != nil {
		return nil, err
	}
	if userIdentifier.Valid {
		s.UserIdentifier = &userIdentifier.String
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	if lastActivityAt.Valid {
		s.LastActivityAt = &lastActivityAt.Time
	}
	for _, field := range []struct {
		raw  []byte
		dest any
	}{{location, &s.Location}, {viewport, &s.Viewport}, {tags, &s.Tags}} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("decode session json column: %w", err)
		}
	}
	return s, nil
}

func (st *PostgresSessionStore) CreateSession(ctx context.Context, s *models.Session) error {
	viewport, err := json.Marshal(s.Viewport)
	if err != nil {
		return fmt.Errorf("encode viewport: %w", err)
	}
	tags, err := json.Marshal(nonNilMap(s.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	var location []byte
	if s.Location != nil {
		if location, err = json.Marshal(s.Location); err != nil {
			return fmt.Errorf("encode location: %w", err)
		}
	}

	_, err = st.db.ExecContext(ctx, `
		INSERT INTO sessions (id, site_id, user_identifier, device_type, browser, os, location, viewport, tags, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.SiteID, s.UserIdentifier, s.DeviceType, s.Browser, s.OS, location, viewport, tags, s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// sessionKey parses a session id for comparison against the uuid primary key.
// Anything that is not a uuid cannot name a stored session.
func sessionKey(id string) (uuid.UUID, error) {
	key, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return key, nil
}

func (st *PostgresSessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	key, err := sessionKey(id)
	if err != nil {
		return nil, err
	}
	row := st.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, key)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (st *PostgresSessionStore) UpdateIdentity(ctx context.Context, id string, userIdentifier *string, tags map[string]any) error {
	encoded, err := json.Marshal(nonNilMap(tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	key, err := sessionKey(id)
	if err != nil {
		return err
	}
	res, err := st.db.ExecContext(ctx,
		`UPDATE sessions SET user_identifier = $2, tags = $3 WHERE id = $1`,
		key, userIdentifier, encoded)
	if err != nil {
		return fmt.Errorf("failed to identify session: %w", err)
	}
	return requireRow(res, "session "+id)
}

func (st *PostgresSessionStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	key, err := sessionKey(id)
	if err != nil {
		return err
	}
	res, err := st.db.ExecContext(ctx, `
		UPDATE sessions
		SET last_activity_at = GREATEST(COALESCE(last_activity_at, $2), $2)
		WHERE id = $1
	`, key, at)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return requireRow(res, "session "+id)
}

func (st *PostgresSessionStore) EndSession(ctx context.Context, id string, at time.Time) error {
	key, err := sessionKey(id)
	if err != nil {
		return err
	}
	res, err := st.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = COALESCE(ended_at, $2) WHERE id = $1`, key, at)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return requireRow(res, "session "+id)
}

func (st *PostgresSessionStore) ListSessions(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	clauses := []string{"site_id = ANY($1)"}
	args := []any{pq.Array(filter.SiteIDs)}
	if !filter.StartedSince.IsZero() {
		args = append(args, filter.StartedSince)
		clauses = append(clauses, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !filter.StartedUntil.IsZero() {
		args = append(args, filter.StartedUntil)
		clauses = append(clauses, fmt.Sprintf("started_at <= $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY started_at, id`
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
