package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

type fakeRecorder struct {
	mu       sync.Mutex
	sessions []string
	analyses []*rhythm.EntryAnalysis
	err      error
}

func (f *fakeRecorder) RecordAnalysis(ctx context.Context, sessionID string, analysis *rhythm.EntryAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	f.analyses = append(f.analyses, analysis)
	return f.err
}

type fakePublisher struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, r *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return f.err
}

func tachycardiaBatch(session string) Batch {
	b := Batch{Key: BatchKey{SessionID: session}, T0MS: 1000, T1MS: 9000}
	values := []float64{60, 60, 60, 60, 110, 110, 110, 110, 110}
	for i, v := range values {
		b.Points = append(b.Points, Point{TsMS: int64(1000 + i*1000), Value: v})
	}
	return b
}

func TestAnalysisSink_RecordsAndPublishes(t *testing.T) {
	recorder := &fakeRecorder{}
	first := &fakePublisher{}
	second := &fakePublisher{}

	sink := NewAnalysisSink(recorder, first)
	sink.AddPublisher(second)

	if err := sink.Consume(context.Background(), tachycardiaBatch("s1")); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if len(recorder.sessions) != 1 || recorder.sessions[0] != "s1" {
		t.Fatalf("Expected analysis recorded for s1, got %v", recorder.sessions)
	}

	analysis := recorder.analyses[0]
	if analysis.RRCount != 8 || !analysis.MetricsComputed {
		t.Errorf("Unexpected analysis summary: rr=%d computed=%v", analysis.RRCount, analysis.MetricsComputed)
	}

	var types []rhythm.EventType
	for _, e := range analysis.Events {
		types = append(types, e.Type)
	}
	if len(types) != 2 || types[0] != rhythm.EventTachycardia || types[1] != rhythm.EventSuddenChange {
		t.Errorf("Unexpected events: %v", types)
	}

	for _, p := range []*fakePublisher{first, second} {
		if len(p.results) != 1 {
			t.Fatalf("Expected 1 published result, got %d", len(p.results))
		}
		if p.results[0].SessionID != "s1" || p.results[0].T0MS != 1000 {
			t.Errorf("Unexpected result: %+v", p.results[0])
		}
	}
}

func TestAnalysisSink_ErrorsDoNotStopPublishing(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("redis down")}
	failing := &fakePublisher{err: errors.New("nats down")}
	healthy := &fakePublisher{}

	sink := NewAnalysisSink(recorder, failing, healthy)
	if err := sink.Consume(context.Background(), tachycardiaBatch("s2")); err != nil {
		t.Fatalf("Consume must not fail: %v", err)
	}

	if len(healthy.results) != 1 {
		t.Errorf("Expected healthy publisher to receive result, got %d", len(healthy.results))
	}
}

func TestAnalysisSink_NilRecorder(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAnalysisSink(nil, pub)

	short := Batch{Key: BatchKey{SessionID: "s3"}, T0MS: 1, T1MS: 1, Points: []Point{{TsMS: 1, Value: 70}}}
	if err := sink.Consume(context.Background(), short); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if len(pub.results) != 1 || len(pub.results[0].Analysis.Events) != 0 {
		t.Errorf("Expected one empty result, got %+v", pub.results)
	}
}

func TestCompositeSink(t *testing.T) {
	a, b := &TestSink{}, &TestSink{}
	composite := NewCompositeSink(a, &LogSink{}, b)

	if err := composite.Consume(context.Background(), tachycardiaBatch("s4")); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if len(a.GetBatches()) != 1 || len(b.GetBatches()) != 1 {
		t.Error("Expected every sink to receive the batch")
	}
}
