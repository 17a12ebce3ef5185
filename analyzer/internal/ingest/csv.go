package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// SeriesPoint - точка временного ряда со смещением от начала записи
type SeriesPoint struct {
	TimeSec float64
	Value   float64
}

// ParseCSV читает файл вида time_sec,value. Заголовок необязателен,
// строки с ошибками пропускаются.
func ParseCSV(r io.Reader) ([]SeriesPoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV file")
	}

	startIndex := 0
	if isHeader(records[0]) {
		startIndex = 1
	}

	points := make([]SeriesPoint, 0, len(records))
	for i := startIndex; i < len(records); i++ {
		if len(records[i]) < 2 {
			log.Printf("[WARN] CSV line %d has %d columns, need 2", i+1, len(records[i]))
			continue
		}

		timeSec, err := strconv.ParseFloat(strings.TrimSpace(records[i][0]), 64)
		if err != nil {
			log.Printf("[WARN] CSV line %d - time error: %v", i+1, err)
			continue
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(records[i][1]), 64)
		if err != nil {
			log.Printf("[WARN] CSV line %d - value error: %v", i+1, err)
			continue
		}

		points = append(points, SeriesPoint{TimeSec: timeSec, Value: value})
	}

	if len(points) == 0 {
		return nil, fmt.Errorf("no valid records found in CSV")
	}

	return points, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	return err != nil
}

// GroupByWindow раскладывает ряд по окнам длиной window, начиная с start.
// Метки окна берутся из start + смещение начала окна.
func GroupByWindow(start time.Time, points []SeriesPoint, window time.Duration) []rhythm.HeartRateEntry {
	if window <= 0 {
		window = time.Minute
	}

	sorted := make([]SeriesPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimeSec < sorted[j].TimeSec })

	var entries []rhythm.HeartRateEntry
	currentIdx := int64(-1)

	for _, p := range sorted {
		offset := time.Duration(p.TimeSec * float64(time.Second))
		idx := int64(offset / window)
		if offset < 0 {
			idx = -1 - int64((-offset-1)/window)
		}

		if idx != currentIdx || len(entries) == 0 {
			label := start.Add(time.Duration(idx) * window)
			entries = append(entries, rhythm.HeartRateEntry{
				Date: label.Format(DateLayout),
				Time: label.Format(ClockLayout),
			})
			currentIdx = idx
		}

		last := &entries[len(entries)-1]
		last.Values = append(last.Values, p.Value)
	}

	return entries
}
