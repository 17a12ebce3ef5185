// Package archive хранит обнаруженные события ритма в ClickHouse для
// последующей аналитики.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
)

const (
	EnvDSN          = "CLICKHOUSE_DSN"
	EnvDatabase     = "CLICKHOUSE_DATABASE"
	EnvEventsTable  = "CLICKHOUSE_EVENTS_TABLE"
	EnvCreateTables = "CLICKHOUSE_CREATE_TABLES"
)

type Config struct {
	DSN          string
	Database     string
	EventsTable  string
	CreateTables bool
}

// ClickHouseArchive реализует batch.Publisher
type ClickHouseArchive struct {
	db          *sql.DB
	database    string
	eventsTable string
}

// MissingEnvironmentError - задана только часть переменных ClickHouse
type MissingEnvironmentError struct {
	Missing []string
}

func (e MissingEnvironmentError) Error() string {
	return fmt.Sprintf("missing environment variables: [ %s ]", strings.Join(e.Missing, ", "))
}

// ConfigFromEnvironment возвращает nil, если ни одна переменная не задана
func ConfigFromEnvironment() (*Config, error) {
	dsn, dsnSet := os.LookupEnv(EnvDSN)
	database, databaseSet := os.LookupEnv(EnvDatabase)
	table, tableSet := os.LookupEnv(EnvEventsTable)
	createTables, _ := os.LookupEnv(EnvCreateTables)

	if !dsnSet && !databaseSet && !tableSet {
		return nil, nil
	}

	missing := make([]string, 0)
	if !dsnSet {
		missing = append(missing, EnvDSN)
	}
	if !databaseSet {
		missing = append(missing, EnvDatabase)
	}
	if !tableSet {
		missing = append(missing, EnvEventsTable)
	}
	if len(missing) > 0 {
		return nil, MissingEnvironmentError{Missing: missing}
	}

	return &Config{
		DSN:          dsn,
		Database:     database,
		EventsTable:  table,
		CreateTables: createTables == "true" || createTables == "1" || createTables == "yes",
	}, nil
}

// LoadFromEnvironment открывает архив по переменным окружения.
// Если ClickHouse не настроен, возвращает nil без ошибки.
func LoadFromEnvironment(ctx context.Context) (*ClickHouseArchive, error) {
	cfg, err := ConfigFromEnvironment()
	if err != nil || cfg == nil {
		return nil, err
	}
	return NewClickHouseArchive(ctx, *cfg)
}

func NewClickHouseArchive(ctx context.Context, cfg Config) (*ClickHouseArchive, error) {
	db, err := sql.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	archive := &ClickHouseArchive{
		db:          db,
		database:    cfg.Database,
		eventsTable: cfg.EventsTable,
	}

	if cfg.CreateTables {
		if err := archive.createTables(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log.Printf("[INFO] ClickHouse archive enabled: %s.%s", cfg.Database, cfg.EventsTable)
	return archive, nil
}

// Publish записывает события окна одной транзакцией
func (a *ClickHouseArchive) Publish(ctx context.Context, result *batch.Result) error {
	rows := EventRows(result)
	if len(rows) == 0 {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, a.insertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.WindowStart,
			row.WindowEnd,
			row.SessionID,
			row.Date,
			row.Time,
			row.EventType,
			row.Value,
			row.Severity,
			row.RMSSD,
			row.SDNN,
			row.PNN50,
			row.SD1,
			row.SD2,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (a *ClickHouseArchive) Close() error {
	return a.db.Close()
}

// EventRow - строка таблицы событий
type EventRow struct {
	WindowStart time.Time
	WindowEnd   time.Time
	SessionID   string
	Date        string
	Time        string
	EventType   string
	Value       string
	Severity    string
	RMSSD       float64
	SDNN        float64
	PNN50       float64
	SD1         float64
	SD2         float64
}

func EventRows(result *batch.Result) []EventRow {
	rows := make([]EventRow, 0, len(result.Analysis.Events))
	start := time.UnixMilli(result.T0MS).UTC()
	end := time.UnixMilli(result.T1MS).UTC()

	for _, e := range result.Analysis.Events {
		rows = append(rows, EventRow{
			WindowStart: start,
			WindowEnd:   end,
			SessionID:   result.SessionID,
			Date:        e.Date,
			Time:        e.Time,
			EventType:   string(e.Type),
			Value:       e.Value,
			Severity:    string(e.Severity),
			RMSSD:       e.HRVMetrics.RMSSD,
			SDNN:        e.HRVMetrics.SDNN,
			PNN50:       e.HRVMetrics.PNN50,
			SD1:         e.HRVMetrics.SD1,
			SD2:         e.HRVMetrics.SD2,
		})
	}
	return rows
}

func (a *ClickHouseArchive) insertQuery() string {
	return fmt.Sprintf(`
		INSERT INTO %s.%s
		(window_start, window_end, session_id, date, time, event_type, value, severity, rmssd, sdnn, pnn50, sd1, sd2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.database, a.eventsTable)
}

func (a *ClickHouseArchive) createTables(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, a.database)); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			window_start DateTime64(3),
			window_end DateTime64(3),
			session_id String,
			date String,
			time String,
			event_type LowCardinality(String),
			value String,
			severity LowCardinality(String),
			rmssd Float64 DEFAULT 0,
			sdnn Float64 DEFAULT 0,
			pnn50 Float64 DEFAULT 0,
			sd1 Float64 DEFAULT 0,
			sd2 Float64 DEFAULT 0
		) ENGINE = MergeTree()
		ORDER BY (session_id, window_start, event_type)
	`, a.database, a.eventsTable))
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	return nil
}
