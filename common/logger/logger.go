package logger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/db"
)

// ScrapeEvent is one audit row describing a pipeline event.
type ScrapeEvent struct {
	StateCode string
	CacheID   string
	EventType string
	Message   string
	Details   interface{}
}

// ScrapeEventHook implements zerolog.Hook and mirrors warn+ log lines
// into the scrape_events audit table.
type ScrapeEventHook struct {
	db *db.DB
}

// NewScrapeEventHook creates a new log hook
func NewScrapeEventHook(db *db.DB) *ScrapeEventHook {
	return &ScrapeEventHook{db: db}
}

// Run implements zerolog.Hook.Run
func (h *ScrapeEventHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.WarnLevel {
		return
	}

	event := ScrapeEvent{
		Message:   msg,
		EventType: level.String(),
	}

	// Persisted asynchronously so logging never blocks the pipeline.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := insertEvent(ctx, h.db, event); err != nil {
			// Plain logger here; using the hook again would recurse.
			log.Debug().Err(err).Msg("Failed to persist log event")
		}
	}()
}

// EventLog persists structured pipeline events with their context.
type EventLog struct {
	db *db.DB
}

// NewEventLog creates a new event log service
func NewEventLog(db *db.DB) *EventLog {
	return &EventLog{db: db}
}

// Log writes one event row and echoes it to the console logger.
func (s *EventLog) Log(ctx context.Context, event ScrapeEvent) error {
	if err := insertEvent(ctx, s.db, event); err != nil {
		log.Error().Err(err).Msg("Failed to insert scrape event")
		return err
	}

	log.Info().
		Str("state", event.StateCode).
		Str("eventType", event.EventType).
		Interface("details", event.Details).
		Msg(event.Message)

	return nil
}

// ScrapeStarted logs the start of a portal scrape.
func (s *EventLog) ScrapeStarted(ctx context.Context, stateCode string, page int) error {
	return s.Log(ctx, ScrapeEvent{
		StateCode: stateCode,
		EventType: "scrape.started",
		Message:   "Portal scrape started",
		Details:   map[string]interface{}{"page": page},
	})
}

// ScrapeCompleted logs the completion of a portal scrape.
func (s *EventLog) ScrapeCompleted(ctx context.Context, stateCode, cacheID string, claims, totalPages int) error {
	return s.Log(ctx, ScrapeEvent{
		StateCode: stateCode,
		CacheID:   cacheID,
		EventType: "scrape.completed",
		Message:   "Portal scrape completed",
		Details:   map[string]interface{}{"claims": claims, "total_pages": totalPages},
	})
}

// DripCompleted logs the outcome of one drip cycle for a cache entry.
func (s *EventLog) DripCompleted(ctx context.Context, cacheID string, revealed int, isFinal bool) error {
	return s.Log(ctx, ScrapeEvent{
		CacheID:   cacheID,
		EventType: "drip.completed",
		Message:   "Drip cycle completed",
		Details:   map[string]interface{}{"revealed": revealed, "is_final": isFinal},
	})
}

func insertEvent(ctx context.Context, conn *db.DB, event ScrapeEvent) error {
	if conn == nil || conn.Pool == nil {
		return nil
	}

	details := json.RawMessage("{}")
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = b
		}
	}

	var cacheID *string
	if event.CacheID != "" {
		cacheID = &event.CacheID
	}

	_, err := conn.Pool.Exec(ctx, `
		INSERT INTO scrape_events (id, state_code, cache_id, event_type, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), event.StateCode, cacheID, event.EventType, event.Message, details, time.Now())
	return err
}

// InitializeLogging attaches the database hook to the global logger.
func InitializeLogging(db *db.DB) {
	log.Logger = log.Logger.Hook(NewScrapeEventHook(db))
}
