package batch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/config"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// TestSink собирает все окна
type TestSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (ts *TestSink) Consume(ctx context.Context, b Batch) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.batches = append(ts.batches, b)
	return nil
}

func (ts *TestSink) GetBatches() []Batch {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	result := make([]Batch, len(ts.batches))
	copy(result, ts.batches)
	return result
}

func sample(session string, ts uint64, bpm float64) *telemetryv1.Sample {
	return &telemetryv1.Sample{SessionId: session, TsMs: ts, Bpm: bpm}
}

func addAll(t *testing.T, b *Batcher, samples ...*telemetryv1.Sample) {
	t.Helper()
	for _, s := range samples {
		if err := b.Add(s); err != nil {
			t.Fatalf("Failed to add sample: %v", err)
		}
	}
}

func TestBatcher_FlushBySize(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 3,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 5000,
		DropTooOldMS:    30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// 5 сэмплов: одно окно из 3 точек уходит сразу, 2 остаются
	addAll(t, batcher,
		sample("session1", 1000, 70),
		sample("session1", 2000, 71),
		sample("session1", 3000, 72),
		sample("session1", 4000, 73),
		sample("session1", 5000, 74),
	)

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}
	if len(batches[0].Points) != 3 {
		t.Errorf("Expected 3 points in first batch, got %d", len(batches[0].Points))
	}
}

func TestBatcher_FlushBySpan(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpanMS:  1000,
		FlushIntervalMS: 5000,
		DropTooOldMS:    30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	addAll(t, batcher,
		sample("session1", 1000, 70),
		sample("session1", 1500, 71),
		sample("session1", 2100, 72), // span 1100ms > 1000ms
	)

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}

	batch := batches[0]
	if len(batch.Points) != 2 {
		t.Errorf("Expected 2 points in flushed batch, got %d", len(batch.Points))
	}
	if span := batch.T1MS - batch.T0MS; span != 500 {
		t.Errorf("Expected span of 500ms in flushed batch, got %dms", span)
	}
}

func TestBatcher_OutOfOrderTolerance(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples:     100,
		BatchMaxSpanMS:      30000,
		FlushIntervalMS:     5000,
		OutOfOrderTolerance: 200 * time.Millisecond,
		DropTooOldMS:        30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	addAll(t, batcher,
		sample("session1", 1000, 70),
		sample("session1", 1500, 71),
		sample("session1", 1200, 90), // отстает на 300ms
	)

	batcher.Stop()

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	if len(batches[0].Points) != 3 {
		t.Errorf("Expected 3 points in batch, got %d", len(batches[0].Points))
	}

	if stats := batcher.GetStats(); stats.OutOfOrder != 1 {
		t.Errorf("Expected 1 out-of-order sample, got %d", stats.OutOfOrder)
	}

	// Запись для анализа упорядочена по времени
	entry := batches[0].Entry()
	want := []float64{70, 90, 71}
	for i, v := range want {
		if entry.Values[i] != v {
			t.Fatalf("Expected values %v, got %v", want, entry.Values)
		}
	}
}

func TestBatcher_DropTooOld(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples:     100,
		BatchMaxSpanMS:      30000,
		FlushIntervalMS:     5000,
		OutOfOrderTolerance: 500 * time.Millisecond,
		DropTooOldMS:        2000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	addAll(t, batcher,
		sample("session1", 5000, 70),
		sample("session1", 6000, 71),
	)

	// отстает на 5 секунд
	if err := batcher.Add(sample("session1", 1000, 72)); !errors.Is(err, ErrSampleTooOld) {
		t.Errorf("Expected ErrSampleTooOld, got %v", err)
	}

	stats := batcher.GetStats()
	if stats.Received != 2 {
		t.Errorf("Expected 2 received samples, got %d", stats.Received)
	}
	if stats.Dropped != 1 {
		t.Errorf("Expected 1 dropped sample, got %d", stats.Dropped)
	}
}

func TestBatcher_InvalidSamples(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 5000,
		DropTooOldMS:    30000,
	}

	batcher := NewBatcher(cfg, &TestSink{})
	defer batcher.Stop()

	invalid := []*telemetryv1.Sample{
		sample("", 1000, 70),
		sample("session1", 0, 70),
		sample("session1", 1000, math.NaN()),
		sample("session1", 1000, math.Inf(1)),
		sample("session1", 1000, -1),
	}
	for _, s := range invalid {
		if err := batcher.Add(s); !errors.Is(err, ErrInvalidSample) {
			t.Errorf("Expected ErrInvalidSample for %+v, got %v", s, err)
		}
	}

	// нет контакта с датчиком, но сэмпл валиден
	addAll(t, batcher, sample("session1", 1000, 0))

	stats := batcher.GetStats()
	if stats.Dropped != 5 {
		t.Errorf("Expected 5 dropped samples, got %d", stats.Dropped)
	}
	if stats.Received != 1 {
		t.Errorf("Expected 1 received sample, got %d", stats.Received)
	}
}

func TestBatcher_TimerFlush(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 100,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 100,
		DropTooOldMS:    30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	addAll(t, batcher, sample("session1", 1000, 70))

	time.Sleep(350 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch flushed by timer, got %d", len(batches))
	}
	if len(batches[0].Points) != 1 {
		t.Errorf("Expected 1 point in batch, got %d", len(batches[0].Points))
	}
}

func TestBatcher_SessionsAreSeparate(t *testing.T) {
	cfg := &config.Config{
		BatchMaxSamples: 2,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 5000,
		DropTooOldMS:    30000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	addAll(t, batcher,
		sample("session1", 1000, 70),
		sample("session2", 1100, 50),
		sample("session1", 1200, 71),
		sample("session2", 1300, 51),
	)

	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches (one per session), got %d", len(batches))
	}
	for _, b := range batches {
		for _, p := range b.Points {
			if b.Key.SessionID == "session1" && p.Value < 70 {
				t.Errorf("session2 point leaked into session1 batch: %+v", b)
			}
		}
	}
}

func TestBatch_EntryLabels(t *testing.T) {
	b := Batch{
		Key:  BatchKey{SessionID: "s"},
		T0MS: time.Date(2024, 3, 1, 13, 5, 30, 0, time.UTC).UnixMilli(),
		Points: []Point{
			{TsMS: 2, Value: 80},
			{TsMS: 1, Value: 75},
		},
	}

	entry := b.Entry()
	if entry.Date != "2024-03-01" || entry.Time != "1:05 PM" {
		t.Errorf("Unexpected labels: %s %s", entry.Date, entry.Time)
	}
	if entry.Values[0] != 75 || entry.Values[1] != 80 {
		t.Errorf("Expected values sorted by time, got %v", entry.Values)
	}
}
