package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// SampleAdder принимает сэмплы в поток анализа (batch.Batcher)
type SampleAdder interface {
	Add(sample *telemetryv1.Sample) error
}

type natsSubscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// SampleSubscriber читает JSON сэмплы из subject и передает их в батчер.
// Сообщение - один Sample или массив Sample.
type SampleSubscriber struct {
	conn    natsSubscriber
	subject string
	adder   SampleAdder

	mu       sync.Mutex
	sub      *nats.Subscription
	received int64
	rejected int64
}

func NewSampleSubscriber(conn natsSubscriber, subject string, adder SampleAdder) *SampleSubscriber {
	return &SampleSubscriber{
		conn:    conn,
		subject: subject,
		adder:   adder,
	}
}

func (s *SampleSubscriber) Start() error {
	sub, err := s.conn.Subscribe(s.subject, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	log.Printf("[INFO] Subscribed to NATS samples: %s", s.subject)
	return nil
}

func (s *SampleSubscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}

// Counts возвращает число сэмплов, принятых батчером, и число отказов:
// нераспознанные сообщения плюс сэмплы, которые батчер отбросил
func (s *SampleSubscriber) Counts() (received, rejected int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.rejected
}

func (s *SampleSubscriber) handle(msg *nats.Msg) {
	samples, err := decodeSamples(msg.Data)
	if err != nil {
		s.count(0, 1)
		log.Printf("[WARN] Invalid sample message on %s: %v", msg.Subject, err)
		return
	}

	var accepted, dropped int64
	for _, sample := range samples {
		err := s.adder.Add(sample)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, batch.ErrInvalidSample), errors.Is(err, batch.ErrSampleTooOld):
			dropped++
		default:
			dropped++
			log.Printf("[ERROR] Failed to add sample from NATS: %v", err)
		}
	}

	if dropped > 0 {
		log.Printf("[WARN] Samples dropped on %s: dropped=%d accepted=%d", msg.Subject, dropped, accepted)
	}
	s.count(accepted, dropped)
}

func (s *SampleSubscriber) count(received, rejected int64) {
	s.mu.Lock()
	s.received += received
	s.rejected += rejected
	s.mu.Unlock()
}

func decodeSamples(data []byte) ([]*telemetryv1.Sample, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	if data[0] == '[' {
		var samples []*telemetryv1.Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, err
		}
		return samples, nil
	}

	var sample telemetryv1.Sample
	if err := json.Unmarshal(data, &sample); err != nil {
		return nil, err
	}
	return []*telemetryv1.Sample{&sample}, nil
}
