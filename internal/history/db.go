package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/aleister1102/deploywatch/internal/common"
	"github.com/aleister1102/deploywatch/internal/detector"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// EventKind distinguishes stored events.
type EventKind string

const (
	KindUpdate EventKind = "update"
	KindError  EventKind = "error"
)

// Event is one row of deployment_events.
type Event struct {
	ID         int64     `json:"id"`
	EventID    string    `json:"event_id"`
	Kind       EventKind `json:"kind"`
	BaseURL    string    `json:"base_url"`
	OccurredAt time.Time `json:"occurred_at"`
	Added      []string  `json:"added,omitempty"`
	Removed    []string  `json:"removed,omitempty"`
	Scripts    int       `json:"scripts"`
	Message    string    `json:"message,omitempty"`
}

// DB stores detected deployments and round failures in SQLite.
type DB struct {
	db        *sql.DB
	maxEvents int
	logger    zerolog.Logger
}

// NewDB opens (creating if needed) the database and ensures the schema.
// maxEvents of zero keeps every row.
func NewDB(dataSourceName string, maxEvents int, logger zerolog.Logger) (*DB, error) {
	logger = logger.With().Str("component", "HistoryDB").Logger()
	logger.Info().Str("db_path", dataSourceName).Msg("Initializing history database connection")

	if dataSourceName != ":memory:" {
		dbDir := filepath.Dir(dataSourceName)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, common.WrapErrorf(err, "failed to create history database directory %s", dbDir)
		}
	}

	dbInstance, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, common.WrapErrorf(err, "sql.Open failed for %s", dataSourceName)
	}
	// one connection keeps :memory: databases shared and serializes writers
	dbInstance.SetMaxOpenConns(1)

	d := &DB{db: dbInstance, maxEvents: maxEvents, logger: logger}
	if err := d.InitSchema(context.Background()); err != nil {
		d.Close()
		return nil, common.WrapError(err, "failed to initialize schema")
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// InitSchema creates the deployment_events table if it doesn't already exist.
func (d *DB) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS deployment_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT UNIQUE NOT NULL,
		kind TEXT NOT NULL,
		base_url TEXT NOT NULL,
		occurred_at INTEGER NOT NULL,
		added TEXT,
		removed TEXT,
		scripts INTEGER DEFAULT 0,
		message TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_deployment_events_occurred ON deployment_events(occurred_at);
	`
	if _, err := d.db.ExecContext(ctx, query); err != nil {
		d.logger.Error().Err(err).Msg("Failed to initialize schema")
		return err
	}
	return nil
}

// RecordUpdate stores a detected deployment.
func (d *DB) RecordUpdate(ctx context.Context, baseURL string, update detector.Update) (Event, error) {
	return d.Record(ctx, Event{
		Kind:       KindUpdate,
		BaseURL:    baseURL,
		OccurredAt: update.DetectedAt,
		Added:      referenceStrings(update.Added),
		Removed:    referenceStrings(update.Removed),
		Scripts:    len(update.Current),
	})
}

// RecordError stores a failed round or reload.
func (d *DB) RecordError(ctx context.Context, baseURL string, cause error, at time.Time) (Event, error) {
	return d.Record(ctx, Event{
		Kind:       KindError,
		BaseURL:    baseURL,
		OccurredAt: at,
		Message:    cause.Error(),
	})
}

// Record inserts ev, filling EventID and OccurredAt when unset, then prunes old rows.
func (d *DB) Record(ctx context.Context, ev Event) (Event, error) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	added, err := json.Marshal(nonNil(ev.Added))
	if err != nil {
		return ev, common.WrapError(err, "failed to encode added scripts")
	}
	removed, err := json.Marshal(nonNil(ev.Removed))
	if err != nil {
		return ev, common.WrapError(err, "failed to encode removed scripts")
	}

	query := `INSERT INTO deployment_events (event_id, kind, base_url, occurred_at, added, removed, scripts, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := d.db.ExecContext(ctx, query, ev.EventID, string(ev.Kind), ev.BaseURL, ev.OccurredAt.UnixMilli(),
		string(added), string(removed), ev.Scripts, sql.NullString{String: ev.Message, Valid: ev.Message != ""})
	if err != nil {
		d.logger.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Failed to record event")
		return ev, common.WrapError(err, "failed to insert deployment event")
	}
	if ev.ID, err = result.LastInsertId(); err != nil {
		return ev, common.WrapError(err, "failed to get last insert ID")
	}
	d.logger.Debug().Int64("db_id", ev.ID).Str("kind", string(ev.Kind)).Msg("Recorded event")

	if err := d.prune(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to prune history")
	}
	return ev, nil
}

// Recent returns up to limit events, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]Event, error) {
	query := `SELECT id, event_id, kind, base_url, occurred_at, added, removed, scripts, message FROM deployment_events ORDER BY occurred_at DESC, id DESC LIMIT ?`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, common.WrapError(err, "failed to query recent events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev             Event
			kind           string
			occurredAt     int64
			added, removed sql.NullString
			message        sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &kind, &ev.BaseURL, &occurredAt, &added, &removed, &ev.Scripts, &message); err != nil {
			return nil, common.WrapError(err, "failed to scan event")
		}
		ev.Kind = EventKind(kind)
		ev.OccurredAt = time.UnixMilli(occurredAt)
		ev.Message = message.String
		if err := decodeList(added, &ev.Added); err != nil {
			return nil, err
		}
		if err := decodeList(removed, &ev.Removed); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Count returns the number of stored events.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployment_events`).Scan(&n); err != nil {
		return 0, common.WrapError(err, "failed to count events")
	}
	return n, nil
}

func (d *DB) prune(ctx context.Context) error {
	if d.maxEvents <= 0 {
		return nil
	}
	query := `DELETE FROM deployment_events WHERE id NOT IN (SELECT id FROM deployment_events ORDER BY occurred_at DESC, id DESC LIMIT ?)`
	_, err := d.db.ExecContext(ctx, query, d.maxEvents)
	return err
}

func referenceStrings(refs []detector.Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.String())
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func decodeList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return common.WrapError(err, "failed to decode script list")
	}
	return nil
}
