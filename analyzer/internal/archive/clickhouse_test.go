package archive

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// unset удаляет переменную до конца теста
func unset(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestConfigFromEnvironment_Missing(t *testing.T) {
	t.Setenv(EnvDSN, "clickhouse://localhost:9000")
	unset(t, EnvDatabase)
	unset(t, EnvEventsTable)

	_, err := ConfigFromEnvironment()
	var missing MissingEnvironmentError
	if !errors.As(err, &missing) {
		t.Fatalf("Expected MissingEnvironmentError, got %v", err)
	}
	if len(missing.Missing) != 2 || !strings.Contains(err.Error(), EnvEventsTable) {
		t.Errorf("Unexpected missing list: %v", missing.Missing)
	}
}

func TestConfigFromEnvironment_None(t *testing.T) {
	unset(t, EnvDSN)
	unset(t, EnvDatabase)
	unset(t, EnvEventsTable)

	cfg, err := ConfigFromEnvironment()
	if err != nil || cfg != nil {
		t.Errorf("Expected disabled archive, got %+v, %v", cfg, err)
	}

	archive, err := LoadFromEnvironment(context.Background())
	if err != nil || archive != nil {
		t.Errorf("Expected nil archive, got %v, %v", archive, err)
	}
}

func TestConfigFromEnvironment_Full(t *testing.T) {
	t.Setenv(EnvDSN, "clickhouse://localhost:9000")
	t.Setenv(EnvDatabase, "rhythm")
	t.Setenv(EnvEventsTable, "events")
	t.Setenv(EnvCreateTables, "yes")

	cfg, err := ConfigFromEnvironment()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Database != "rhythm" || cfg.EventsTable != "events" || !cfg.CreateTables {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestEventRows(t *testing.T) {
	result := &batch.Result{
		SessionID: "s1",
		T0MS:      1710081000000,
		T1MS:      1710081060000,
		Analysis:  rhythm.AnalyzeEntry(rhythm.HeartRateEntry{Date: "2024-03-10", Time: "2:30 PM", Values: []float64{80, 115}}),
	}

	rows := EventRows(result)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.EventType != "Sudden change" || row.Severity != "Medium" || row.Value != "Change of 35 BPM" {
		t.Errorf("Unexpected row: %+v", row)
	}
	if row.WindowStart.UnixMilli() != result.T0MS || row.WindowEnd.UnixMilli() != result.T1MS {
		t.Errorf("Unexpected window bounds: %v - %v", row.WindowStart, row.WindowEnd)
	}
	if row.Date != "2024-03-10" || row.SessionID != "s1" {
		t.Errorf("Unexpected labels: %+v", row)
	}
}

func TestEventRows_NoEvents(t *testing.T) {
	result := &batch.Result{Analysis: rhythm.AnalyzeEntry(rhythm.HeartRateEntry{Values: []float64{70}})}
	if rows := EventRows(result); len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}
