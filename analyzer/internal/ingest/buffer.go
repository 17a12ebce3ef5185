package ingest

import (
	"sort"
	"sync"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// DefaultBufferCapacity - час измерений при частоте 1 Гц
const DefaultBufferCapacity = 3600

// Reading - одно измерение с устройства
type Reading struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// ReadingBuffer хранит последние измерения. При переполнении вытесняются
// самые старые, при заданном maxAge - также устаревшие.
type ReadingBuffer struct {
	mu       sync.RWMutex
	readings []Reading
	capacity int
	maxAge   time.Duration
}

func NewReadingBuffer(capacity int, maxAge time.Duration) *ReadingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &ReadingBuffer{
		readings: make([]Reading, 0, capacity),
		capacity: capacity,
		maxAge:   maxAge,
	}
}

// Add добавляет измерение. Измерения хранятся в порядке поступления.
func (b *ReadingBuffer) Add(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxAge > 0 {
		b.evictOlderThan(r.At.Add(-b.maxAge))
	}

	if len(b.readings) >= b.capacity {
		drop := len(b.readings) - b.capacity + 1
		b.readings = append(b.readings[:0], b.readings[drop:]...)
	}

	b.readings = append(b.readings, r)
}

func (b *ReadingBuffer) evictOlderThan(cutoff time.Time) {
	keep := 0
	for keep < len(b.readings) && b.readings[keep].At.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		b.readings = append(b.readings[:0], b.readings[keep:]...)
	}
}

// Since возвращает копию измерений не старше d относительно now
func (b *ReadingBuffer) Since(d time.Duration, now time.Time) []Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := now.Add(-d)
	out := make([]Reading, 0, len(b.readings))
	for _, r := range b.readings {
		if !r.At.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (b *ReadingBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.readings)
}

// Latest возвращает последнее измерение
func (b *ReadingBuffer) Latest() (Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.readings) == 0 {
		return Reading{}, false
	}
	return b.readings[len(b.readings)-1], true
}

// GroupReadings раскладывает измерения по минутам. Ключ - момент измерения,
// усеченный до минуты, поэтому одна и та же HH:MM разных суток дает разные
// окна. Дата и время метки берутся из самого измерения в его часовом поясе.
func GroupReadings(readings []Reading) []rhythm.HeartRateEntry {
	groups := make(map[time.Time][]float64)
	for _, r := range readings {
		key := r.At.Truncate(time.Minute)
		groups[key] = append(groups[key], r.Value)
	}

	keys := make([]time.Time, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	entries := make([]rhythm.HeartRateEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, rhythm.HeartRateEntry{
			Date:   k.Format(DateLayout),
			Time:   k.Format(ClockLayout),
			Values: groups[k],
		})
	}
	return entries
}
