// Package ingest преобразует внешние форматы пульса (Fitbit intraday, CSV,
// BLE GATT Heart Rate Measurement) в окна rhythm.HeartRateEntry.
package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// Форматы меток окна
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "3:04 PM"
)

// FitbitHeartRate - ответ Fitbit /activities/heart/date/{date}/1d/1sec.json
type FitbitHeartRate struct {
	Activities []HeartActivity  `json:"activities-heart"`
	Intraday   IntradayDataset `json:"activities-heart-intraday"`
}

type HeartActivity struct {
	DateTime string `json:"dateTime"`
}

type IntradayDataset struct {
	Dataset         []IntradayPoint `json:"dataset"`
	DatasetInterval int             `json:"datasetInterval"`
	DatasetType     string          `json:"datasetType"`
}

// IntradayPoint - одна точка датасета, Time в формате HH:MM:SS
type IntradayPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// EntriesFromFitbit разбирает ответ Fitbit и группирует точки по минутам
func EntriesFromFitbit(raw []byte) ([]rhythm.HeartRateEntry, error) {
	var resp FitbitHeartRate
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode fitbit heart rate: %w", err)
	}

	if len(resp.Activities) == 0 {
		return nil, fmt.Errorf("fitbit response has no activities-heart date")
	}

	return GroupByMinute(resp.Activities[0].DateTime, resp.Intraday.Dataset), nil
}

// GroupByMinute группирует точки по HH:MM. Окна сортируются по минуте,
// значения внутри окна сохраняют входной порядок.
func GroupByMinute(date string, points []IntradayPoint) []rhythm.HeartRateEntry {
	groups := make(map[string][]float64)
	labels := make(map[string]string)

	for _, p := range points {
		ts, err := time.Parse("15:04:05", p.Time)
		if err != nil {
			continue
		}

		key := ts.Format("15:04")
		if _, ok := groups[key]; !ok {
			labels[key] = ts.Format(ClockLayout)
		}
		groups[key] = append(groups[key], p.Value)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]rhythm.HeartRateEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, rhythm.HeartRateEntry{
			Date:   date,
			Time:   labels[k],
			Values: groups[k],
		})
	}
	return entries
}
