// Package csvreader воспроизводит записи пульса из CSV (time_sec,value)
package csvreader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

type DataPoint struct {
	TimeSec float64
	Value   float64
}

func ReadCSVFile(filename string) ([]DataPoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", filename, err)
	}
	defer file.Close()

	points, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return points, nil
}

// ReadCSV читает записи после строки заголовка
func ReadCSV(r io.Reader) ([]DataPoint, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV data: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("no data records")
	}

	dataPoints := make([]DataPoint, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) < 2 {
			return nil, fmt.Errorf("invalid record at line %d: expected 2 columns", i+2)
		}

		timeSec, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid time format at line %d: %w", i+2, err)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value format at line %d: %w", i+2, err)
		}

		dataPoints = append(dataPoints, DataPoint{
			TimeSec: timeSec,
			Value:   value,
		})
	}

	return dataPoints, nil
}

// StreamData отдает точки в темпе записи, ускоренном в speed раз.
// Канал закрывается по окончании данных или отмене ctx.
func StreamData(ctx context.Context, dataPoints []DataPoint, startTime time.Time, speed float64, dataChan chan<- DataPoint) {
	defer close(dataChan)

	if speed <= 0 {
		speed = 1
	}

	for _, point := range dataPoints {
		offset := time.Duration(point.TimeSec / speed * float64(time.Second))
		if wait := time.Until(startTime.Add(offset)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		select {
		case dataChan <- point:
		case <-ctx.Done():
			return
		}
	}
}
