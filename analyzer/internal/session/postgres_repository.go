package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                VARCHAR(64) PRIMARY KEY,
	status            VARCHAR(16) NOT NULL,
	started_at        TIMESTAMPTZ NOT NULL,
	stopped_at        TIMESTAMPTZ,
	saved_at          TIMESTAMPTZ,
	total_duration_ms BIGINT NOT NULL DEFAULT 0,
	total_data_points BIGINT NOT NULL DEFAULT 0,
	metadata          JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS session_metrics (
	session_id       VARCHAR(64) PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
	rmssd            DOUBLE PRECISION NOT NULL,
	sdnn             DOUBLE PRECISION NOT NULL,
	pnn50            DOUBLE PRECISION NOT NULL,
	rr_count         INTEGER NOT NULL,
	windows_analyzed BIGINT NOT NULL,
	events_detected  BIGINT NOT NULL,
	high_severity    BIGINT NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS session_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  VARCHAR(64) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	event_date  VARCHAR(32) NOT NULL,
	event_time  VARCHAR(32) NOT NULL,
	event_type  VARCHAR(32) NOT NULL,
	value       TEXT NOT NULL,
	severity    VARCHAR(16) NOT NULL,
	details     TEXT NOT NULL,
	hrv_metrics JSONB NOT NULL,
	detected_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);

CREATE TABLE IF NOT EXISTS session_windows (
	session_id   VARCHAR(64) NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	window_index INTEGER NOT NULL,
	summary      JSONB NOT NULL,
	PRIMARY KEY (session_id, window_index)
);
`

// execer - общее подмножество *sql.DB и *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// PostgresRepository реализует Repository для PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN открывает пул соединений и проверяет доступность БД
func NewPostgresRepositoryFromDSN(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Migrate создает таблицы, если их нет
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// ===== Сессии =====

const sessionColumns = `id, status, started_at, stopped_at, saved_at, total_duration_ms, total_data_points, metadata`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var metadataJSON []byte

	if err := row.Scan(
		&session.ID,
		&session.Status,
		&session.StartedAt,
		&session.StoppedAt,
		&session.SavedAt,
		&session.TotalDurationMs,
		&session.TotalDataPoints,
		&metadataJSON,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &session, nil
}

func upsertSession(ctx context.Context, db execer, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			stopped_at = EXCLUDED.stopped_at,
			saved_at = EXCLUDED.saved_at,
			total_duration_ms = EXCLUDED.total_duration_ms,
			total_data_points = EXCLUDED.total_data_points,
			metadata = EXCLUDED.metadata
	`

	if _, err := db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StartedAt,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalDataPoints,
		metadataJSON,
	); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, session *Session) error {
	return upsertSession(ctx, r.db, session)
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, session *Session) error {
	metadataJSON, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET status = $2, stopped_at = $3, saved_at = $4, total_duration_ms = $5, total_data_points = $6, metadata = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StoppedAt,
		session.SavedAt,
		session.TotalDurationMs,
		session.TotalDataPoints,
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.ID)
	}

	return nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			continue // поврежденные записи пропускаем
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queries := []string{
		"DELETE FROM session_windows WHERE session_id = $1",
		"DELETE FROM session_events WHERE session_id = $1",
		"DELETE FROM session_metrics WHERE session_id = $1",
		"DELETE FROM sessions WHERE id = $1",
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ===== Метрики =====

func saveMetrics(ctx context.Context, db execer, metrics *SessionMetrics) error {
	query := `
		INSERT INTO session_metrics (
			session_id, rmssd, sdnn, pnn50, rr_count,
			windows_analyzed, events_detected, high_severity, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO UPDATE SET
			rmssd = EXCLUDED.rmssd,
			sdnn = EXCLUDED.sdnn,
			pnn50 = EXCLUDED.pnn50,
			rr_count = EXCLUDED.rr_count,
			windows_analyzed = EXCLUDED.windows_analyzed,
			events_detected = EXCLUDED.events_detected,
			high_severity = EXCLUDED.high_severity,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := db.ExecContext(ctx, query,
		metrics.SessionID,
		metrics.RMSSD,
		metrics.SDNN,
		metrics.PNN50,
		metrics.RRCount,
		metrics.WindowsAnalyzed,
		metrics.EventsDetected,
		metrics.HighSeverity,
		metrics.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	return nil
}

func (r *PostgresRepository) SaveMetrics(ctx context.Context, metrics *SessionMetrics) error {
	return saveMetrics(ctx, r.db, metrics)
}

func (r *PostgresRepository) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	query := `
		SELECT session_id, rmssd, sdnn, pnn50, rr_count,
			windows_analyzed, events_detected, high_severity, updated_at
		FROM session_metrics
		WHERE session_id = $1
	`

	var metrics SessionMetrics
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&metrics.SessionID,
		&metrics.RMSSD,
		&metrics.SDNN,
		&metrics.PNN50,
		&metrics.RRCount,
		&metrics.WindowsAnalyzed,
		&metrics.EventsDetected,
		&metrics.HighSeverity,
		&metrics.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrMetricsNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	return &metrics, nil
}

// ===== События =====

func saveEvents(ctx context.Context, db execer, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO session_events (
			session_id, event_date, event_time, event_type, value, severity, details, hrv_metrics, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		hrvJSON, err := json.Marshal(event.HRVMetrics)
		if err != nil {
			return fmt.Errorf("failed to marshal hrv metrics: %w", err)
		}

		if _, err := stmt.ExecContext(ctx,
			event.SessionID,
			event.Date,
			event.Time,
			string(event.Type),
			event.Value,
			string(event.Severity),
			event.Details,
			hrvJSON,
			event.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return nil
}

func (r *PostgresRepository) SaveEvents(ctx context.Context, events []SessionEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveEvents(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	query := `
		SELECT id, session_id, event_date, event_time, event_type, value, severity, details, hrv_metrics, detected_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := make([]SessionEvent, 0)
	for rows.Next() {
		var event SessionEvent
		var hrvJSON []byte

		if err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Date,
			&event.Time,
			&event.Type,
			&event.Value,
			&event.Severity,
			&event.Details,
			&hrvJSON,
			&event.DetectedAt,
		); err != nil {
			continue
		}

		if err := json.Unmarshal(hrvJSON, &event.HRVMetrics); err != nil {
			continue
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// ===== Окна =====

func saveWindows(ctx context.Context, db execer, windows []WindowSummary) error {
	if len(windows) == 0 {
		return nil
	}

	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO session_windows (session_id, window_index, summary)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, window_index) DO UPDATE SET summary = EXCLUDED.summary
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, w := range windows {
		summary, err := json.Marshal(w)
		if err != nil {
			return fmt.Errorf("failed to marshal window: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, w.SessionID, w.Index, summary); err != nil {
			return fmt.Errorf("failed to insert window: %w", err)
		}
	}

	return nil
}

// ===== Полные данные сессии =====

// SaveSessionData сохраняет сессию, метрики, события и окна в одной транзакции.
// События сессии перезаписываются, поэтому повторное сохранение не дублирует их.
func (r *PostgresRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertSession(ctx, tx, data.Session); err != nil {
		return err
	}

	if data.Metrics != nil {
		if err := saveMetrics(ctx, tx, data.Metrics); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_events WHERE session_id = $1", data.Session.ID); err != nil {
		return fmt.Errorf("failed to reset events: %w", err)
	}

	if err := saveEvents(ctx, tx, data.Events); err != nil {
		return err
	}

	if err := saveWindows(ctx, tx, data.Windows); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
