package session

import (
	"context"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// Repository - долговременное хранилище сессий
type Repository interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	ListSessions(ctx context.Context, limit, offset int) ([]*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SaveMetrics(ctx context.Context, metrics *SessionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error)

	SaveEvents(ctx context.Context, events []SessionEvent) error
	GetEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)

	// SaveSessionData сохраняет сессию целиком в одной транзакции
	SaveSessionData(ctx context.Context, data *SessionData) error
}

// CacheStore - горячее хранилище активных сессий (Redis)
type CacheStore interface {
	SetSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Метрики перезаписываются целиком
	SetMetrics(ctx context.Context, metrics *SessionMetrics) error
	GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error)

	// События и окна только дописываются
	AppendEvents(ctx context.Context, sessionID string, events []SessionEvent) error
	GetEvents(ctx context.Context, sessionID string, eventType rhythm.EventType) ([]SessionEvent, error)
	GetAllEvents(ctx context.Context, sessionID string) ([]SessionEvent, error)

	AppendWindow(ctx context.Context, sessionID string, window WindowSummary) error
	GetWindows(ctx context.Context, sessionID string) ([]WindowSummary, error)
	GetWindowCount(ctx context.Context, sessionID string) (int, error)

	GetSessionData(ctx context.Context, sessionID string) (*SessionData, error)

	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SetSessionTTL(ctx context.Context, sessionID string, ttl time.Duration) error
}
