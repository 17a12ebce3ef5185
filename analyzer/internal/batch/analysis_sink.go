package batch

import (
	"context"
	"log"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// Recorder сохраняет результат анализа окна в сессии
type Recorder interface {
	RecordAnalysis(ctx context.Context, sessionID string, analysis *rhythm.EntryAnalysis) error
}

// Publisher получает результаты анализа (WebSocket, NATS, архив)
type Publisher interface {
	Publish(ctx context.Context, result *Result) error
}

// Result - проанализированное окно сессии
type Result struct {
	SessionID string               `json:"session_id"`
	T0MS      int64                `json:"t0_ms"`
	T1MS      int64                `json:"t1_ms"`
	Analysis  rhythm.EntryAnalysis `json:"analysis"`
}

// AnalysisSink прогоняет окно через классификатор ритма
type AnalysisSink struct {
	recorder   Recorder
	publishers []Publisher
}

func NewAnalysisSink(recorder Recorder, publishers ...Publisher) *AnalysisSink {
	return &AnalysisSink{
		recorder:   recorder,
		publishers: publishers,
	}
}

// AddPublisher подключает получателя результатов. Вызывать до старта потока.
func (as *AnalysisSink) AddPublisher(p Publisher) {
	as.publishers = append(as.publishers, p)
}

// Consume реализует интерфейс Sink
func (as *AnalysisSink) Consume(ctx context.Context, b Batch) error {
	analysis := rhythm.AnalyzeEntry(b.Entry())

	result := &Result{
		SessionID: b.Key.SessionID,
		T0MS:      b.T0MS,
		T1MS:      b.T1MS,
		Analysis:  analysis,
	}

	if len(analysis.Events) > 0 {
		log.Printf("[ANALYSIS] session=%s window=%s %s rr=%d events=%d",
			result.SessionID, analysis.Entry.Date, analysis.Entry.Time, analysis.RRCount, len(analysis.Events))
	}

	if as.recorder != nil {
		if err := as.recorder.RecordAnalysis(ctx, result.SessionID, &result.Analysis); err != nil {
			// Публикацию не прерываем
			log.Printf("[ERROR] Failed to record analysis: session=%s: %v", result.SessionID, err)
		}
	}

	for _, p := range as.publishers {
		if err := p.Publish(ctx, result); err != nil {
			log.Printf("[ERROR] Failed to publish analysis: session=%s: %v", result.SessionID, err)
		}
	}

	return nil
}

// CompositeSink передает окно во все подключенные sink'и по очереди
type CompositeSink struct {
	sinks []Sink
}

func NewCompositeSink(sinks ...Sink) *CompositeSink {
	return &CompositeSink{
		sinks: sinks,
	}
}

func (cs *CompositeSink) Consume(ctx context.Context, b Batch) error {
	for _, sink := range cs.sinks {
		if err := sink.Consume(ctx, b); err != nil {
			log.Printf("[ERROR] Sink failed to consume batch: %v", err)
		}
	}
	return nil
}
