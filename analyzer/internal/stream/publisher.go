package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// natsPublisher - часть *nats.Conn, нужная для публикации
type natsPublisher interface {
	Publish(subj string, data []byte) error
}

// EventMessage - одно событие ритма в NATS
type EventMessage struct {
	SessionID string               `json:"session_id"`
	T0MS      int64                `json:"t0_ms"`
	T1MS      int64                `json:"t1_ms"`
	Event     rhythm.AbnormalEvent `json:"event"`
}

// EventPublisher публикует каждое найденное событие в <prefix>.<session_id>
type EventPublisher struct {
	conn   natsPublisher
	prefix string
}

func NewEventPublisher(conn natsPublisher, prefix string) *EventPublisher {
	return &EventPublisher{
		conn:   conn,
		prefix: prefix,
	}
}

// Subject возвращает subject событий сессии
func (p *EventPublisher) Subject(sessionID string) string {
	return p.prefix + "." + subjectToken(sessionID)
}

// Publish реализует batch.Publisher. Окна без событий не публикуются.
func (p *EventPublisher) Publish(ctx context.Context, result *batch.Result) error {
	subject := p.Subject(result.SessionID)

	for _, event := range result.Analysis.Events {
		data, err := json.Marshal(EventMessage{
			SessionID: result.SessionID,
			T0MS:      result.T0MS,
			T1MS:      result.T1MS,
			Event:     event,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		if err := p.conn.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
	}

	return nil
}

// subjectToken заменяет символы, недопустимые в токене subject
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
