package session

import (
	"errors"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrMetricsNotFound  = errors.New("metrics not found")
	ErrSessionNotActive = errors.New("session is not active")
)

// SessionStatus представляет статус сессии
type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusStopped SessionStatus = "STOPPED"
	SessionStatusSaved   SessionStatus = "SAVED"
)

// Session - сессия мониторинга пульса
type Session struct {
	ID              string        `json:"id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	StoppedAt       *time.Time    `json:"stopped_at,omitempty"`
	SavedAt         *time.Time    `json:"saved_at,omitempty"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	TotalDataPoints int64         `json:"total_data_points"`
	Metadata        Metadata      `json:"metadata,omitempty"`
}

// Metadata содержит дополнительную информацию о сессии
type Metadata struct {
	UserID      string `json:"user_id,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Source      string `json:"source,omitempty"` // "fitbit", "ble", "emulator"
	Notes       string `json:"notes,omitempty"`
	CreatedFrom string `json:"created_from,omitempty"`
}

// SessionMetrics - последние HRV-метрики сессии и счетчики окон
type SessionMetrics struct {
	SessionID       string    `json:"session_id"`
	RMSSD           float64   `json:"rmssd"`
	SDNN            float64   `json:"sdnn"`
	PNN50           float64   `json:"pnn50"`
	RRCount         int       `json:"rr_count"`
	WindowsAnalyzed int64     `json:"windows_analyzed"`
	EventsDetected  int64     `json:"events_detected"`
	HighSeverity    int64     `json:"high_severity_events"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// SessionEvent - событие нарушения ритма, привязанное к сессии
type SessionEvent struct {
	ID         int64             `json:"id,omitempty"`
	SessionID  string            `json:"session_id"`
	Date       string            `json:"date"`
	Time       string            `json:"time"`
	Type       rhythm.EventType  `json:"type"`
	Value      string            `json:"value"`
	Severity   rhythm.Severity   `json:"severity"`
	Details    string            `json:"details"`
	HRVMetrics rhythm.HRVMetrics `json:"hrv_metrics"`
	DetectedAt time.Time         `json:"detected_at"`
}

// WindowSummary - сводка по одному проанализированному окну
type WindowSummary struct {
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Samples   int       `json:"samples"`
	MinBPM    float64   `json:"min_bpm"`
	MaxBPM    float64   `json:"max_bpm"`
	AvgBPM    float64   `json:"avg_bpm"`
	RRCount   int       `json:"rr_count"`
	RMSSD     float64   `json:"rmssd"`
	SDNN      float64   `json:"sdnn"`
	PNN50     float64   `json:"pnn50"`
	Events    int       `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionData - все данные сессии для хранения
type SessionData struct {
	Session *Session        `json:"session"`
	Metrics *SessionMetrics `json:"metrics"`
	Events  []SessionEvent  `json:"events"`
	Windows []WindowSummary `json:"windows"`
}

// CreateSessionRequest - запрос на создание сессии
type CreateSessionRequest struct {
	UserID      string `json:"user_id,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Source      string `json:"source,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedFrom string `json:"created_from,omitempty"`
}

// SessionResponse - сессия вместе с текущими метриками
type SessionResponse struct {
	Session *Session        `json:"session"`
	Metrics *SessionMetrics `json:"metrics,omitempty"`
}

// SaveSessionRequest - запрос на сохранение сессии
type SaveSessionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ConvertEvents привязывает события классификатора к сессии
func ConvertEvents(sessionID string, events []rhythm.AbnormalEvent, detectedAt time.Time) []SessionEvent {
	out := make([]SessionEvent, 0, len(events))
	for _, e := range events {
		out = append(out, SessionEvent{
			SessionID:  sessionID,
			Date:       e.Date,
			Time:       e.Time,
			Type:       e.Type,
			Value:      e.Value,
			Severity:   e.Severity,
			Details:    e.Details,
			HRVMetrics: e.HRVMetrics,
			DetectedAt: detectedAt,
		})
	}
	return out
}

// SummarizeWindow строит сводку окна по результату анализа
func SummarizeWindow(sessionID string, index int, analysis *rhythm.EntryAnalysis, createdAt time.Time) WindowSummary {
	w := WindowSummary{
		SessionID: sessionID,
		Index:     index,
		Date:      analysis.Entry.Date,
		Time:      analysis.Entry.Time,
		Samples:   len(analysis.Entry.Values),
		RRCount:   analysis.RRCount,
		RMSSD:     analysis.Metrics.RMSSD,
		SDNN:      analysis.Metrics.SDNN,
		PNN50:     analysis.Metrics.PNN50,
		Events:    len(analysis.Events),
		CreatedAt: createdAt,
	}

	var sum float64
	for i, v := range analysis.Entry.Values {
		if i == 0 || v < w.MinBPM {
			w.MinBPM = v
		}
		if i == 0 || v > w.MaxBPM {
			w.MaxBPM = v
		}
		sum += v
	}
	if w.Samples > 0 {
		w.AvgBPM = sum / float64(w.Samples)
	}

	return w
}
