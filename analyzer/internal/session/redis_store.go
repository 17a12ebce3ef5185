package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// RedisStore реализует CacheStore поверх Redis
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// ===== Ключи Redis =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func metricsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:hrv:current", sessionID)
}

func eventsKey(sessionID string, eventType rhythm.EventType) string {
	return fmt.Sprintf("session:%s:events:%s", sessionID, eventType)
}

func windowsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:windows", sessionID)
}

func sessionPattern(sessionID string) string {
	return fmt.Sprintf("session:%s:*", sessionID)
}

// ===== Сессии =====

func (r *RedisStore) SetSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// KeepTTL: обновление статуса не снимает TTL сохраненной сессии
	return r.client.Set(ctx, sessionKey(session.ID), data, redis.KeepTTL).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// forEachKey применяет fn ко всем ключам сессии в одном pipeline
func (r *RedisStore) forEachKey(ctx context.Context, sessionID string, fn func(pipe redis.Pipeliner, key string)) error {
	iter := r.client.Scan(ctx, 0, sessionPattern(sessionID), 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		fn(pipe, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	if pipe.Len() == 0 {
		return nil
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return r.forEachKey(ctx, sessionID, func(pipe redis.Pipeliner, key string) {
		pipe.Del(ctx, key)
	})
}

func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	count, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.forEachKey(ctx, sessionID, func(pipe redis.Pipeliner, key string) {
		pipe.Expire(ctx, key, ttl)
	})
}

// ===== Метрики =====

func (r *RedisStore) SetMetrics(ctx context.Context, metrics *SessionMetrics) error {
	fields := map[string]interface{}{
		"rmssd":            metrics.RMSSD,
		"sdnn":             metrics.SDNN,
		"pnn50":            metrics.PNN50,
		"rr_count":         metrics.RRCount,
		"windows_analyzed": metrics.WindowsAnalyzed,
		"events_detected":  metrics.EventsDetected,
		"high_severity":    metrics.HighSeverity,
		"updated_at":       metrics.UpdatedAt.UnixMilli(),
	}

	return r.client.HSet(ctx, metricsKey(metrics.SessionID), fields).Err()
}

func (r *RedisStore) GetMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	data, err := r.client.HGetAll(ctx, metricsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMetricsNotFound, sessionID)
	}

	metrics := &SessionMetrics{SessionID: sessionID}
	metrics.RMSSD, _ = strconv.ParseFloat(data["rmssd"], 64)
	metrics.SDNN, _ = strconv.ParseFloat(data["sdnn"], 64)
	metrics.PNN50, _ = strconv.ParseFloat(data["pnn50"], 64)
	metrics.RRCount, _ = strconv.Atoi(data["rr_count"])
	metrics.WindowsAnalyzed, _ = strconv.ParseInt(data["windows_analyzed"], 10, 64)
	metrics.EventsDetected, _ = strconv.ParseInt(data["events_detected"], 10, 64)
	metrics.HighSeverity, _ = strconv.ParseInt(data["high_severity"], 10, 64)
	if ms, err := strconv.ParseInt(data["updated_at"], 10, 64); err == nil {
		metrics.UpdatedAt = time.UnixMilli(ms)
	}

	return metrics, nil
}

// ===== События =====

func (r *RedisStore) AppendEvents(ctx context.Context, sessionID string, events []SessionEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		pipe.RPush(ctx, eventsKey(sessionID, event.Type), data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetEvents(ctx context.Context, sessionID string, eventType rhythm.EventType) ([]SessionEvent, error) {
	data, err := r.client.LRange(ctx, eventsKey(sessionID, eventType), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]SessionEvent, 0, len(data))
	for _, item := range data {
		var event SessionEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue // поврежденные записи пропускаем
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *RedisStore) GetAllEvents(ctx context.Context, sessionID string) ([]SessionEvent, error) {
	var all []SessionEvent

	for _, eventType := range rhythm.EventTypes {
		events, err := r.GetEvents(ctx, sessionID, eventType)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}

	return all, nil
}

// ===== Окна =====

// AppendWindow хранит окна в Sorted Set со score = индекс окна
func (r *RedisStore) AppendWindow(ctx context.Context, sessionID string, window WindowSummary) error {
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal window: %w", err)
	}

	return r.client.ZAdd(ctx, windowsKey(sessionID), redis.Z{
		Score:  float64(window.Index),
		Member: data,
	}).Err()
}

func (r *RedisStore) GetWindows(ctx context.Context, sessionID string) ([]WindowSummary, error) {
	data, err := r.client.ZRange(ctx, windowsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get windows: %w", err)
	}

	windows := make([]WindowSummary, 0, len(data))
	for _, item := range data {
		var w WindowSummary
		if err := json.Unmarshal([]byte(item), &w); err != nil {
			continue
		}
		windows = append(windows, w)
	}

	return windows, nil
}

func (r *RedisStore) GetWindowCount(ctx context.Context, sessionID string) (int, error) {
	count, err := r.client.ZCard(ctx, windowsKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ===== Все данные сессии =====

func (r *RedisStore) GetSessionData(ctx context.Context, sessionID string) (*SessionData, error) {
	session, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	metrics, err := r.GetMetrics(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrMetricsNotFound) {
		return nil, err
	}

	events, err := r.GetAllEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	windows, err := r.GetWindows(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return &SessionData{
		Session: session,
		Metrics: metrics,
		Events:  events,
		Windows: windows,
	}, nil
}
