package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

var ErrUnknownEventType = errors.New("unknown event type")

// Manager управляет сессиями мониторинга
type Manager struct {
	cache      CacheStore
	repository Repository
	dataTTL    time.Duration

	mu             sync.RWMutex
	activeSessions map[string]*Session // активные сессии в памяти, наружу отдаются только копии

	now func() time.Time
}

// NewManager создает менеджер сессий. dataTTL применяется к данным в кэше после сохранения в БД.
func NewManager(cache CacheStore, repository Repository, dataTTL time.Duration) *Manager {
	return &Manager{
		cache:          cache,
		repository:     repository,
		dataTTL:        dataTTL,
		activeSessions: make(map[string]*Session),
		now:            time.Now,
	}
}

// CreateSession создает новую активную сессию
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		Status:    SessionStatusActive,
		StartedAt: m.now(),
		Metadata: Metadata{
			UserID:      req.UserID,
			DeviceID:    req.DeviceID,
			Source:      req.Source,
			Notes:       req.Notes,
			CreatedFrom: req.CreatedFrom,
		},
	}

	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}

	m.mu.Lock()
	m.activeSessions[session.ID] = session
	m.mu.Unlock()

	log.Printf("[SESSION] Created new session: %s", session.ID)
	return copySession(session), nil
}

// GetSession ищет сессию в памяти, затем в Redis, затем в PostgreSQL
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.activeSessions[sessionID]; ok {
		defer m.mu.RUnlock()
		return copySession(session), nil
	}
	m.mu.RUnlock()

	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		log.Printf("[WARN] Cache lookup failed for session %s: %v", sessionID, err)
	}

	if m.repository == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return m.repository.GetSession(ctx, sessionID)
}

// StopSession переводит активную сессию в STOPPED
func (m *Manager) StopSession(ctx context.Context, sessionID string) error {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if session.Status != SessionStatusActive {
		return fmt.Errorf("%w: %s (status: %s)", ErrSessionNotActive, sessionID, session.Status)
	}

	// Под блокировкой, чтобы RecordAnalysis не перезаписал статус
	m.mu.Lock()
	if active, ok := m.activeSessions[sessionID]; ok {
		session = copySession(active)
	}
	now := m.now()
	session.Status = SessionStatusStopped
	session.StoppedAt = &now
	session.TotalDurationMs = now.Sub(session.StartedAt).Milliseconds()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	if err := m.cache.SetSession(ctx, session); err != nil {
		return fmt.Errorf("failed to update session in cache: %w", err)
	}

	log.Printf("[SESSION] Stopped session: %s, duration: %dms", sessionID, session.TotalDurationMs)
	return nil
}

// SaveSession переносит данные сессии из Redis в PostgreSQL
func (m *Manager) SaveSession(ctx context.Context, sessionID string, notes string) error {
	if m.repository == nil {
		return errors.New("session repository is not configured")
	}

	data, err := m.cache.GetSessionData(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get session data from cache: %w", err)
	}

	if notes != "" {
		data.Session.Metadata.Notes = notes
	}

	now := m.now()
	if data.Session.Status == SessionStatusActive {
		data.Session.StoppedAt = &now
		data.Session.TotalDurationMs = now.Sub(data.Session.StartedAt).Milliseconds()
	}
	data.Session.Status = SessionStatusSaved
	data.Session.SavedAt = &now

	if err := m.repository.SaveSessionData(ctx, data); err != nil {
		return fmt.Errorf("failed to save session to database: %w", err)
	}

	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	if err := m.cache.SetSession(ctx, data.Session); err != nil {
		log.Printf("[WARN] Failed to update session status in cache: %v", err)
	}

	// Данные остаются в кэше до истечения TTL
	if m.dataTTL > 0 {
		if err := m.cache.SetSessionTTL(ctx, sessionID, m.dataTTL); err != nil {
			log.Printf("[WARN] Failed to set session TTL: %v", err)
		}
	}

	log.Printf("[SESSION] Saved session to database: %s (events=%d windows=%d)",
		sessionID, len(data.Events), len(data.Windows))
	return nil
}

// ListSessions возвращает сохраненные сессии
func (m *Manager) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	if m.repository == nil {
		return []*Session{}, nil
	}
	return m.repository.ListSessions(ctx, limit, offset)
}

// DeleteSession удаляет сессию из памяти, кэша и БД
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.activeSessions, sessionID)
	m.mu.Unlock()

	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}

	if m.repository != nil {
		if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session from database: %w", err)
		}
	}

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// RecordAnalysis сохраняет результат анализа окна: метрики, события и сводку окна.
// Реализует batch.Recorder.
func (m *Manager) RecordAnalysis(ctx context.Context, sessionID string, analysis *rhythm.EntryAnalysis) error {
	session, err := m.getOrCreateSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get or create session: %w", err)
	}

	if session.Status != SessionStatusActive {
		log.Printf("[WARN] Received window for non-active session: %s (status: %s)", sessionID, session.Status)
		return nil
	}

	now := m.now()

	// 1. Метрики: последние посчитанные HRV плюс счетчики окон
	metrics, err := m.cache.GetMetrics(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrMetricsNotFound) {
			return fmt.Errorf("failed to load metrics: %w", err)
		}
		metrics = &SessionMetrics{SessionID: sessionID}
	}

	metrics.WindowsAnalyzed++
	metrics.EventsDetected += int64(len(analysis.Events))
	for _, e := range analysis.Events {
		if e.Severity == rhythm.SeverityHigh {
			metrics.HighSeverity++
		}
	}
	if analysis.MetricsComputed {
		metrics.RMSSD = analysis.Metrics.RMSSD
		metrics.SDNN = analysis.Metrics.SDNN
		metrics.PNN50 = analysis.Metrics.PNN50
		metrics.RRCount = analysis.RRCount
	}
	metrics.UpdatedAt = now

	if err := m.cache.SetMetrics(ctx, metrics); err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	// 2. События
	if len(analysis.Events) > 0 {
		events := ConvertEvents(sessionID, analysis.Events, now)
		if err := m.cache.AppendEvents(ctx, sessionID, events); err != nil {
			log.Printf("[WARN] Failed to append events: %v", err)
		}
	}

	// 3. Сводка окна
	index, err := m.cache.GetWindowCount(ctx, sessionID)
	if err != nil {
		index = 0
	}
	if err := m.cache.AppendWindow(ctx, sessionID, SummarizeWindow(sessionID, index, analysis, now)); err != nil {
		log.Printf("[WARN] Failed to append window: %v", err)
	}

	// 4. Счетчик точек
	m.mu.Lock()
	if active, ok := m.activeSessions[sessionID]; ok {
		active.TotalDataPoints += int64(len(analysis.Entry.Values))
		session = copySession(active)
	}
	m.mu.Unlock()

	if err := m.cache.SetSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to update session: %v", err)
	}

	return nil
}

// GetSessionMetrics возвращает текущие метрики сессии
func (m *Manager) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics, err := m.cache.GetMetrics(ctx, sessionID)
	if err == nil || m.repository == nil {
		return metrics, err
	}
	return m.repository.GetMetrics(ctx, sessionID)
}

// GetSessionEvents возвращает события сессии; пустой eventType - все типы
func (m *Manager) GetSessionEvents(ctx context.Context, sessionID string, eventType string) ([]SessionEvent, error) {
	if eventType == "" {
		events, err := m.cache.GetAllEvents(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 && m.repository != nil {
			return m.repository.GetEvents(ctx, sessionID)
		}
		if events == nil {
			events = []SessionEvent{}
		}
		return events, nil
	}

	t := rhythm.EventType(eventType)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	return m.cache.GetEvents(ctx, sessionID, t)
}

// GetSessionData возвращает все данные сессии из кэша
func (m *Manager) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	return m.cache.GetSessionData(ctx, sessionID)
}

// IsSessionActive проверяет, активна ли сессия
func (m *Manager) IsSessionActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.activeSessions[sessionID]
	return exists
}

// getOrCreateSession получает существующую сессию или создает новую.
// Сессии создаются автоматически, когда данные приходят от устройства с новым id.
func (m *Manager) getOrCreateSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, exists := m.activeSessions[sessionID]; exists {
		defer m.mu.RUnlock()
		return copySession(session), nil
	}
	m.mu.RUnlock()

	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		if session.Status == SessionStatusActive {
			m.remember(session)
		}
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	if m.repository != nil {
		session, err = m.repository.GetSession(ctx, sessionID)
		if err == nil {
			log.Printf("[SESSION] Loaded existing session from database: %s (status: %s)", sessionID, session.Status)
			if err := m.cache.SetSession(ctx, session); err != nil {
				log.Printf("[WARN] Failed to cache session: %v", err)
			}
			if session.Status == SessionStatusActive {
				m.remember(session)
			}
			return session, nil
		}
	}

	log.Printf("[SESSION] Auto-creating new session from incoming data: %s", sessionID)

	session = &Session{
		ID:        sessionID,
		Status:    SessionStatusActive,
		StartedAt: m.now(),
		Metadata: Metadata{
			CreatedFrom: "auto-created",
			Notes:       "Automatically created from device data",
		},
	}

	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save auto-created session to cache: %w", err)
	}

	m.remember(session)
	return copySession(session), nil
}

func (m *Manager) remember(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.activeSessions[session.ID]; !exists {
		m.activeSessions[session.ID] = copySession(session)
	}
}

func copySession(s *Session) *Session {
	c := *s
	return &c
}
