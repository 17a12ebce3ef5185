package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// memoryCache - CacheStore в памяти для тестов
type memoryCache struct {
	mu       sync.Mutex
	sessions map[string]Session
	metrics  map[string]SessionMetrics
	events   map[string][]SessionEvent
	windows  map[string][]WindowSummary
	ttls     map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		sessions: make(map[string]Session),
		metrics:  make(map[string]SessionMetrics),
		events:   make(map[string][]SessionEvent),
		windows:  make(map[string][]WindowSummary),
		ttls:     make(map[string]time.Duration),
	}
}

func (c *memoryCache) SetSession(ctx context.Context, s *Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = *s
	return nil
}

func (c *memoryCache) GetSession(ctx context.Context, id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return &s, nil
}

func (c *memoryCache) DeleteSession(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	delete(c.metrics, id)
	delete(c.events, id)
	delete(c.windows, id)
	return nil
}

func (c *memoryCache) SetMetrics(ctx context.Context, m *SessionMetrics) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[m.SessionID] = *m
	return nil
}

func (c *memoryCache) GetMetrics(ctx context.Context, id string) (*SessionMetrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricsNotFound, id)
	}
	return &m, nil
}

func (c *memoryCache) AppendEvents(ctx context.Context, id string, events []SessionEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[id] = append(c.events[id], events...)
	return nil
}

func (c *memoryCache) GetEvents(ctx context.Context, id string, t rhythm.EventType) ([]SessionEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []SessionEvent{}
	for _, e := range c.events[id] {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *memoryCache) GetAllEvents(ctx context.Context, id string) ([]SessionEvent, error) {
	var all []SessionEvent
	for _, t := range rhythm.EventTypes {
		events, _ := c.GetEvents(ctx, id, t)
		all = append(all, events...)
	}
	return all, nil
}

func (c *memoryCache) AppendWindow(ctx context.Context, id string, w WindowSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[id] = append(c.windows[id], w)
	sort.Slice(c.windows[id], func(i, j int) bool { return c.windows[id][i].Index < c.windows[id][j].Index })
	return nil
}

func (c *memoryCache) GetWindows(ctx context.Context, id string) ([]WindowSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WindowSummary{}, c.windows[id]...), nil
}

func (c *memoryCache) GetWindowCount(ctx context.Context, id string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows[id]), nil
}

func (c *memoryCache) GetSessionData(ctx context.Context, id string) (*SessionData, error) {
	s, err := c.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	m, _ := c.GetMetrics(ctx, id)
	events, _ := c.GetAllEvents(ctx, id)
	windows, _ := c.GetWindows(ctx, id)
	return &SessionData{Session: s, Metrics: m, Events: events, Windows: windows}, nil
}

func (c *memoryCache) SessionExists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[id]
	return ok, nil
}

func (c *memoryCache) SetSessionTTL(ctx context.Context, id string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttls[id] = ttl
	return nil
}

// memoryRepository - Repository в памяти для тестов
type memoryRepository struct {
	mu    sync.Mutex
	saved map[string]*SessionData
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{saved: make(map[string]*SessionData)}
}

func (r *memoryRepository) CreateSession(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[s.ID] = &SessionData{Session: s}
	return nil
}

func (r *memoryRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.saved[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s := *data.Session
	return &s, nil
}

func (r *memoryRepository) UpdateSession(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.saved[s.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.ID)
	}
	data.Session = s
	return nil
}

func (r *memoryRepository) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*Session{}
	for _, data := range r.saved {
		out = append(out, data.Session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []*Session{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepository) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, id)
	return nil
}

func (r *memoryRepository) SaveMetrics(ctx context.Context, m *SessionMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.saved[m.SessionID]; ok {
		data.Metrics = m
	}
	return nil
}

func (r *memoryRepository) GetMetrics(ctx context.Context, id string) (*SessionMetrics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.saved[id]; ok && data.Metrics != nil {
		return data.Metrics, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMetricsNotFound, id)
}

func (r *memoryRepository) SaveEvents(ctx context.Context, events []SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		if data, ok := r.saved[e.SessionID]; ok {
			data.Events = append(data.Events, e)
		}
	}
	return nil
}

func (r *memoryRepository) GetEvents(ctx context.Context, id string) ([]SessionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.saved[id]; ok {
		return data.Events, nil
	}
	return []SessionEvent{}, nil
}

func (r *memoryRepository) SaveSessionData(ctx context.Context, data *SessionData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *data
	r.saved[data.Session.ID] = &copied
	return nil
}
