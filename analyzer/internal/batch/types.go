package batch

import (
	"context"
	"sort"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// Point - одно измерение пульса
type Point struct {
	TsMS  int64   // Временная метка в миллисекундах
	Value float64 // BPM
}

// BatchKey идентифицирует окно по сессии
type BatchKey struct {
	SessionID string
}

// Batch - окно измерений одной сессии
type Batch struct {
	Key    BatchKey
	T0MS   int64 // Время первой точки
	T1MS   int64 // Время последней точки
	Points []Point
}

// Entry превращает окно в запись для анализа ритма.
// Точки упорядочиваются по времени, метки берутся из T0 (UTC).
func (b Batch) Entry() rhythm.HeartRateEntry {
	points := make([]Point, len(b.Points))
	copy(points, b.Points)
	sort.SliceStable(points, func(i, j int) bool { return points[i].TsMS < points[j].TsMS })

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	start := time.UnixMilli(b.T0MS).UTC()
	return rhythm.HeartRateEntry{
		Date:   start.Format("2006-01-02"),
		Time:   start.Format("3:04 PM"),
		Values: values,
	}
}

// Sink обрабатывает готовые окна
type Sink interface {
	Consume(ctx context.Context, b Batch) error
}

// currentBatch отслеживает накапливаемое окно
type currentBatch struct {
	Batch
	lastAddedMS int64 // Локальное время последнего добавления точки
}

func newCurrentBatch(key BatchKey) *currentBatch {
	return &currentBatch{
		Batch: Batch{
			Key:    key,
			Points: make([]Point, 0),
		},
	}
}

// addPoint добавляет точку и расширяет временные границы окна
func (cb *currentBatch) addPoint(point Point, nowMS int64) {
	if len(cb.Points) == 0 {
		cb.T0MS = point.TsMS
		cb.T1MS = point.TsMS
	} else {
		if point.TsMS < cb.T0MS {
			cb.T0MS = point.TsMS
		}
		if point.TsMS > cb.T1MS {
			cb.T1MS = point.TsMS
		}
	}

	cb.Points = append(cb.Points, point)
	cb.lastAddedMS = nowMS
}

func (cb *currentBatch) shouldFlushBySize(maxSamples int) bool {
	return len(cb.Points) >= maxSamples
}

// spanWith - ширина окна, если в него добавить точку с tsMS
func (cb *currentBatch) spanWith(tsMS int64) int64 {
	t0, t1 := cb.T0MS, cb.T1MS
	if tsMS < t0 {
		t0 = tsMS
	}
	if tsMS > t1 {
		t1 = tsMS
	}
	return t1 - t0
}

// clone создает копию окна для отправки в sink
func (cb *currentBatch) clone() Batch {
	pointsCopy := make([]Point, len(cb.Points))
	copy(pointsCopy, cb.Points)

	return Batch{
		Key:    cb.Key,
		T0MS:   cb.T0MS,
		T1MS:   cb.T1MS,
		Points: pointsCopy,
	}
}

func (cb *currentBatch) reset() {
	cb.T0MS = 0
	cb.T1MS = 0
	cb.Points = cb.Points[:0]
	cb.lastAddedMS = 0
}
