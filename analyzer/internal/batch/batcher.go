// Package batch собирает поток измерений пульса в окна по сессиям
// и передает готовые окна в Sink.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/config"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

// Ошибки отброшенных сэмплов, сэмпл при этом учитывается в Stats.Dropped
var (
	ErrInvalidSample = errors.New("invalid sample")
	ErrSampleTooOld  = errors.New("sample too old")
)

// Stats - счетчики батчера
type Stats struct {
	Received   int64 `json:"received"`
	Dropped    int64 `json:"dropped"`
	Flushed    int64 `json:"flushed"`
	OutOfOrder int64 `json:"out_of_order"`
}

type Batcher struct {
	cfg     *config.Config
	sink    Sink
	mu      sync.Mutex
	batches map[BatchKey]*currentBatch

	flushChan chan Batch
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	statsMu sync.RWMutex
	stats   Stats
}

// LogSink пишет сводку окна в лог
type LogSink struct{}

func (ls *LogSink) Consume(ctx context.Context, b Batch) error {
	log.Printf("[BATCH] session=%s points=%d span_ms=%d t0=%d t1=%d",
		b.Key.SessionID,
		len(b.Points),
		b.T1MS-b.T0MS,
		b.T0MS,
		b.T1MS)
	return nil
}

func NewBatcher(cfg *config.Config, sink Sink) *Batcher {
	b := &Batcher{
		cfg:       cfg,
		sink:      sink,
		batches:   make(map[BatchKey]*currentBatch),
		flushChan: make(chan Batch, 100),
		stopChan:  make(chan struct{}),
	}

	b.wg.Add(2)
	go b.flushWorker()
	go b.timerFlusher()

	return b
}

// Add кладет сэмпл в окно его сессии. Невалидные и слишком старые
// сэмплы отбрасываются с ErrInvalidSample или ErrSampleTooOld.
func (b *Batcher) Add(sample *telemetryv1.Sample) error {
	if err := validateSample(sample); err != nil {
		b.bump(func(s *Stats) { s.Dropped++ })
		return fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}

	key := BatchKey{SessionID: sample.GetSessionId()}
	point := Point{
		TsMS:  int64(sample.GetTsMs()),
		Value: sample.GetBpm(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch, exists := b.batches[key]
	if !exists {
		batch = newCurrentBatch(key)
		b.batches[key] = batch
	}

	if len(batch.Points) > 0 {
		lag := batch.T1MS - point.TsMS

		if lag > b.cfg.DropTooOldMS {
			b.bump(func(s *Stats) { s.Dropped++ })
			return fmt.Errorf("%w: session=%s ts_diff=%d", ErrSampleTooOld, key.SessionID, lag)
		}

		if lag > b.cfg.OutOfOrderTolerance.Milliseconds() {
			b.bump(func(s *Stats) { s.OutOfOrder++ })
			log.Printf("[WARN] Out of order sample: session=%s ts_diff=%d", key.SessionID, lag)
		}

		if batch.spanWith(point.TsMS) > b.cfg.BatchMaxSpanMS {
			b.flushBatch(batch)
		}
	}

	batch.addPoint(point, time.Now().UnixMilli())
	b.bump(func(s *Stats) { s.Received++ })

	if batch.shouldFlushBySize(b.cfg.BatchMaxSamples) {
		b.flushBatch(batch)
	}

	return nil
}

func validateSample(sample *telemetryv1.Sample) error {
	if sample.GetSessionId() == "" {
		return fmt.Errorf("empty session_id")
	}

	if sample.GetTsMs() == 0 {
		return fmt.Errorf("invalid timestamp: %d", sample.GetTsMs())
	}

	bpm := sample.GetBpm()
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm < 0 {
		return fmt.Errorf("invalid bpm: %f", bpm)
	}

	return nil
}

// flushBatch отправляет копию окна в канал. Вызывается под b.mu.
func (b *Batcher) flushBatch(batch *currentBatch) {
	if len(batch.Points) == 0 {
		return
	}

	batchCopy := batch.clone()
	batch.reset()

	select {
	case b.flushChan <- batchCopy:
		b.bump(func(s *Stats) { s.Flushed++ })
	default:
		log.Printf("[WARN] Flush channel full, batch dropped: session=%s", batchCopy.Key.SessionID)
		b.bump(func(s *Stats) { s.Dropped += int64(len(batchCopy.Points)) })
	}
}

func (b *Batcher) flushWorker() {
	defer b.wg.Done()

	for {
		select {
		case batch := <-b.flushChan:
			b.consume(batch)

		case <-b.stopChan:
			// Дочитываем то, что успели поставить в очередь
			for {
				select {
				case batch := <-b.flushChan:
					b.consume(batch)
				default:
					return
				}
			}
		}
	}
}

func (b *Batcher) consume(batch Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.sink.Consume(ctx, batch); err != nil {
		log.Printf("[ERROR] Failed to consume batch: %v", err)
	}
}

func (b *Batcher) timerFlusher() {
	defer b.wg.Done()

	ticker := time.NewTicker(time.Duration(b.cfg.FlushIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushIdleBatches()

		case <-b.stopChan:
			return
		}
	}
}

// flushIdleBatches сбрасывает окна, в которые давно не приходили точки
func (b *Batcher) flushIdleBatches() {
	now := time.Now().UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, batch := range b.batches {
		if len(batch.Points) == 0 {
			delete(b.batches, key)
			continue
		}
		if now-batch.lastAddedMS >= b.cfg.FlushIntervalMS {
			b.flushBatch(batch)
		}
	}
}

// Stop сбрасывает все окна, дожидается их обработки и выводит статистику
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		log.Printf("[INFO] Stopping batcher...")

		b.flushAll()
		close(b.stopChan)
		b.wg.Wait()

		b.logStats()
	})
}

func (b *Batcher) flushAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, batch := range b.batches {
		b.flushBatch(batch)
	}
}

func (b *Batcher) bump(update func(s *Stats)) {
	b.statsMu.Lock()
	update(&b.stats)
	b.statsMu.Unlock()
}

func (b *Batcher) logStats() {
	s := b.GetStats()
	log.Printf("[STATS] received=%d dropped=%d flushed=%d out_of_order=%d",
		s.Received, s.Dropped, s.Flushed, s.OutOfOrder)
}

func (b *Batcher) GetStats() Stats {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats
}
