package handler

import (
	"github.com/mujo0401/Fitness-Console/analyzer/internal/ingest"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

// AnalyzeRequest - окна пульса для разового анализа
type AnalyzeRequest struct {
	Entries []rhythm.HeartRateEntry `json:"entries"`
}

// AnalyzeResponse - найденные нарушения ритма
type AnalyzeResponse struct {
	Events []rhythm.AbnormalEvent `json:"events"`
	Count  int                    `json:"count"`
}

// EntriesResponse - окна, построенные из входных данных, и найденные события
type EntriesResponse struct {
	Entries []rhythm.HeartRateEntry `json:"entries"`
	Events  []rhythm.AbnormalEvent  `json:"events"`
	Count   int                     `json:"count"`
}

// SampleInput - одно измерение в запросе на прием данных сессии
type SampleInput struct {
	TsMS uint64  `json:"ts_ms"`
	BPM  float64 `json:"bpm"`
}

type PushSamplesRequest struct {
	Samples []SampleInput `json:"samples"`
}

// PushSamplesResponse - Rejected считает невалидные и слишком старые измерения
type PushSamplesResponse struct {
	SessionID string `json:"session_id"`
	Accepted  int    `json:"accepted"`
	Rejected  int    `json:"rejected"`
}

// BLENotifyRequest - уведомление характеристики 0x2A37 в hex.
// SessionID необязателен: если задан, измерение уходит и в поток сессии.
type BLENotifyRequest struct {
	Payload   string `json:"payload"`
	SessionID string `json:"session_id,omitempty"`
}

type BLENotifyResponse struct {
	Measurement ingest.Measurement `json:"measurement"`
	Buffered    int                `json:"buffered"`
}

type BLEStatusResponse struct {
	Connected bool            `json:"connected"`
	Readings  int             `json:"readings"`
	Latest    *ingest.Reading `json:"latest,omitempty"`
}

type BLEHeartRateResponse struct {
	Period   string                  `json:"period"`
	Source   string                  `json:"source"`
	Readings int                     `json:"readings"`
	Entries  []rhythm.HeartRateEntry `json:"entries"`
	Events   []rhythm.AbnormalEvent  `json:"events,omitempty"`
}
