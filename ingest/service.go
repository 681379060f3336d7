// Package ingest validates tracker batches and hands accepted events to the
// event store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"hotspot/api/messaging"
	"hotspot/api/metrics"
	"hotspot/api/models"
	"hotspot/api/session"
	"hotspot/api/store"
)

// Accepted reports a stored batch.
type Accepted struct {
	SessionID string   `json:"session_id"`
	Count     int      `json:"accepted"`
	EventIDs  []string `json:"event_ids"`
}

// batchNotice is published after a batch is stored.
type batchNotice struct {
	SessionID  string    `json:"session_id"`
	SiteID     int64     `json:"site_id"`
	Count      int       `json:"count"`
	FirstEvent time.Time `json:"first_event"`
	LastEvent  time.Time `json:"last_event"`
}

type Service struct {
	correlator *session.Correlator
	events     store.EventRepository
	publisher  messaging.Publisher
	log        *zap.Logger
}

func NewService(correlator *session.Correlator, events store.EventRepository, publisher messaging.Publisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Service{
		correlator: correlator,
		events:     events,
		publisher:  publisher,
		log:        log,
	}
}

// SubmitEvents stores the whole batch or none of it. Every problem in the
// batch is reported together in one *models.ValidationError. A ref carrying
// only a tracking id opens a session with attrs, and only once the batch has
// validated.
func (s *Service) SubmitEvents(ctx context.Context, ref session.Ref, attrs session.Attributes, raw []RawEvent) (*Accepted, error) {
	if len(raw) == 0 {
		metrics.BatchesRejected.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("empty event batch: %w", models.ErrInvalidArgument)
	}

	ref.SessionID = strings.TrimSpace(ref.SessionID)
	opensSession := ref.SessionID == "" && strings.TrimSpace(ref.TrackingID) != ""

	var sess *models.Session
	if !opensSession {
		var err error
		if sess, err = s.resolve(ctx, ref, attrs); err != nil {
			return nil, err
		}
	}

	events := make([]models.Event, 0, len(raw))
	var reasons []string
	for i, r := range raw {
		event, problems := normalize(r, ref.SessionID)
		for _, p := range problems {
			reasons = append(reasons, fmt.Sprintf("event %d: %s", i, p))
		}
		if len(problems) == 0 {
			events = append(events, event)
		}
	}
	if len(reasons) > 0 {
		metrics.BatchesRejected.WithLabelValues("validation").Inc()
		return nil, &models.ValidationError{Reasons: reasons}
	}

	if opensSession {
		var err error
		if sess, err = s.resolve(ctx, ref, attrs); err != nil {
			return nil, err
		}
	}
	for i := range events {
		events[i].SessionID = sess.ID
		events[i].SiteID = sess.SiteID
		events[i].DeviceType = sess.DeviceType
	}

	if err := s.events.InsertEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("store events for session %s: %w", sess.ID, err)
	}
	if err := s.correlator.Touch(ctx, sess.ID); err != nil {
		return nil, fmt.Errorf("touch session %s: %w", sess.ID, err)
	}

	accepted := &Accepted{SessionID: sess.ID, Count: len(events), EventIDs: make([]string, len(events))}
	notice := batchNotice{SessionID: sess.ID, SiteID: sess.SiteID, Count: len(events)}
	for i, e := range events {
		accepted.EventIDs[i] = e.EventID
		metrics.EventsAccepted.WithLabelValues(string(e.EventType)).Inc()
		if notice.FirstEvent.IsZero() || e.Timestamp.Before(notice.FirstEvent) {
			notice.FirstEvent = e.Timestamp
		}
		if e.Timestamp.After(notice.LastEvent) {
			notice.LastEvent = e.Timestamp
		}
	}

	if err := s.publisher.Publish(ctx, messaging.TopicEventsAccepted, notice); err != nil {
		s.log.Warn("Failed to publish accepted batch",
			zap.String("session_id", sess.ID),
			zap.Int("count", len(events)),
			zap.Error(err))
	}

	return accepted, nil
}

func (s *Service) resolve(ctx context.Context, ref session.Ref, attrs session.Attributes) (*models.Session, error) {
	sess, err := s.correlator.Resolve(ctx, ref, attrs)
	if err != nil {
		reason := "session"
		if errors.Is(err, models.ErrInvalidArgument) {
			reason = "no_session_ref"
		}
		metrics.BatchesRejected.WithLabelValues(reason).Inc()
		return nil, err
	}
	return sess, nil
}
