// Package handler - HTTP API разового анализа ритма, приема данных и BLE.
package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/ingest"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
	telemetryv1 "github.com/mujo0401/Fitness-Console/proto/telemetry"
)

const (
	maxBodyBytes      = 10 << 20
	maxMultipartBytes = 32 << 20

	// Датчик считается подключенным, пока последнее измерение свежее
	bleConnectedWindow = 10 * time.Second
)

// SampleAdder принимает сэмплы в поток анализа (batch.Batcher)
type SampleAdder interface {
	Add(sample *telemetryv1.Sample) error
}

type HTTPHandler struct {
	samples SampleAdder
	ble     *ingest.ReadingBuffer
	now     func() time.Time
}

// NewHTTPHandler создает обработчик. samples может быть nil, тогда прием данных сессий отключен.
func NewHTTPHandler(samples SampleAdder, ble *ingest.ReadingBuffer) *HTTPHandler {
	if ble == nil {
		ble = ingest.NewReadingBuffer(ingest.DefaultBufferCapacity, 0)
	}
	return &HTTPHandler{
		samples: samples,
		ble:     ble,
		now:     time.Now,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/analyze", h.Analyze).Methods("POST")
	router.HandleFunc("/api/analyze/fitbit", h.AnalyzeFitbit).Methods("POST")
	router.HandleFunc("/api/analyze/csv", h.AnalyzeCSV).Methods("POST")
	router.HandleFunc("/api/sessions/{id}/samples", h.PushSamples).Methods("POST")

	ble := router.PathPrefix("/api/ble").Subrouter()
	ble.HandleFunc("/notify", h.BLENotify).Methods("POST")
	ble.HandleFunc("/status", h.BLEStatus).Methods("GET")
	ble.HandleFunc("/heart-rate", h.BLEHeartRate).Methods("GET")
}

// Analyze анализирует переданные окна пульса
// @Summary Анализ окон пульса
// @Description Считает HRV-метрики и ищет нарушения ритма в каждом окне независимо
// @Tags Analysis
// @Accept json
// @Produce json
// @Param request body AnalyzeRequest true "Окна пульса"
// @Success 200 {object} AnalyzeResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/analyze [post]
func (h *HTTPHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	events := rhythm.DetectAbnormalRhythms(req.Entries)

	respondJSON(w, http.StatusOK, AnalyzeResponse{
		Events: events,
		Count:  len(events),
	})
}

// AnalyzeFitbit анализирует ответ Fitbit intraday heart rate
// @Summary Анализ данных Fitbit
// @Description Группирует точки activities-heart-intraday по минутам и анализирует каждую минуту
// @Tags Analysis
// @Accept json
// @Produce json
// @Param request body ingest.FitbitHeartRate true "Ответ Fitbit"
// @Success 200 {object} EntriesResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/analyze/fitbit [post]
func (h *HTTPHandler) AnalyzeFitbit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	entries, err := ingest.EntriesFromFitbit(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondEntries(w, entries)
}

// AnalyzeCSV анализирует CSV файл time_sec,value
// @Summary Анализ CSV
// @Description Разбивает ряд на окна заданной длины начиная со start и анализирует каждое окно
// @Tags Analysis
// @Accept multipart/form-data
// @Produce json
// @Param bpm_file formData file true "CSV файл time_sec,value"
// @Param start formData string false "Начало записи, RFC3339 (по умолчанию текущее время)"
// @Param window formData string false "Длина окна (по умолчанию 1m)"
// @Success 200 {object} EntriesResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/analyze/csv [post]
func (h *HTTPHandler) AnalyzeCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Failed to parse form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("bpm_file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to get BPM file: "+err.Error())
		return
	}
	defer file.Close()

	start := h.now().UTC().Truncate(time.Minute)
	if v := r.FormValue("start"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid start: "+err.Error())
			return
		}
	}

	window := time.Minute
	if v := r.FormValue("window"); v != "" {
		window, err = time.ParseDuration(v)
		if err != nil || window <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid window duration")
			return
		}
	}

	points, err := ingest.ParseCSV(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("[INFO] CSV %s: %d points, window=%s", header.Filename, len(points), window)

	respondEntries(w, ingest.GroupByWindow(start, points, window))
}

// PushSamples передает измерения в поток анализа сессии
// @Summary Прием измерений сессии
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body PushSamplesRequest true "Измерения"
// @Success 202 {object} PushSamplesResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/sessions/{id}/samples [post]
func (h *HTTPHandler) PushSamples(w http.ResponseWriter, r *http.Request) {
	if h.samples == nil {
		respondError(w, http.StatusServiceUnavailable, "Streaming analysis is not available")
		return
	}

	sessionID := mux.Vars(r)["id"]

	var req PushSamplesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Samples) == 0 {
		respondError(w, http.StatusBadRequest, "No samples provided")
		return
	}

	resp := PushSamplesResponse{SessionID: sessionID}
	for _, s := range req.Samples {
		err := h.samples.Add(&telemetryv1.Sample{
			SessionId: sessionID,
			TsMs:      s.TsMS,
			Bpm:       s.BPM,
		})
		switch {
		case err == nil:
			resp.Accepted++
		case errors.Is(err, batch.ErrInvalidSample), errors.Is(err, batch.ErrSampleTooOld):
			resp.Rejected++
		default:
			log.Printf("[ERROR] Failed to add sample: session=%s: %v", sessionID, err)
			respondError(w, http.StatusInternalServerError, "Failed to add samples")
			return
		}
	}

	if resp.Rejected > 0 {
		log.Printf("[WARN] Samples rejected: session=%s rejected=%d accepted=%d", sessionID, resp.Rejected, resp.Accepted)
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// BLENotify принимает уведомление Heart Rate Measurement от BLE датчика
// @Summary Уведомление BLE датчика
// @Tags BLE
// @Accept json
// @Produce json
// @Param request body BLENotifyRequest true "Payload характеристики 0x2A37 в hex"
// @Success 200 {object} BLENotifyResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/ble/notify [post]
func (h *HTTPHandler) BLENotify(w http.ResponseWriter, r *http.Request) {
	var req BLENotifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payload, err := hex.DecodeString(strings.ReplaceAll(req.Payload, " ", ""))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Payload must be hex encoded")
		return
	}

	m, err := ingest.ParseHeartRateMeasurement(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now().UTC()
	h.ble.Add(ingest.Reading{At: now, Value: m.BPM})

	if req.SessionID != "" && h.samples != nil {
		if err := h.samples.Add(&telemetryv1.Sample{
			SessionId: req.SessionID,
			TsMs:      uint64(now.UnixMilli()),
			Bpm:       m.BPM,
		}); err != nil {
			log.Printf("[WARN] Failed to forward BLE sample: session=%s: %v", req.SessionID, err)
		}
	}

	respondJSON(w, http.StatusOK, BLENotifyResponse{
		Measurement: m,
		Buffered:    h.ble.Len(),
	})
}

// BLEStatus сообщает состояние буфера BLE
// @Summary Статус BLE датчика
// @Tags BLE
// @Produce json
// @Success 200 {object} BLEStatusResponse
// @Router /api/ble/status [get]
func (h *HTTPHandler) BLEStatus(w http.ResponseWriter, r *http.Request) {
	resp := BLEStatusResponse{Readings: h.ble.Len()}

	if latest, ok := h.ble.Latest(); ok {
		resp.Latest = &latest
		resp.Connected = h.now().Sub(latest.At) <= bleConnectedWindow
	}

	respondJSON(w, http.StatusOK, resp)
}

// BLEHeartRate возвращает измерения BLE за период, сгруппированные по минутам
// @Summary Пульс с BLE датчика
// @Description Для периодов minute и hour к ответу добавляются найденные нарушения ритма
// @Tags BLE
// @Produce json
// @Param period query string false "Период" Enums(minute, hour, day) default(minute)
// @Success 200 {object} BLEHeartRateResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/ble/heart-rate [get]
func (h *HTTPHandler) BLEHeartRate(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "minute"
	}

	span, withEvents, err := periodSpan(period)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings := h.ble.Since(span, h.now().UTC())
	entries := ingest.GroupReadings(readings)

	resp := BLEHeartRateResponse{
		Period:   period,
		Source:   "bluetooth",
		Readings: len(readings),
		Entries:  entries,
	}
	if withEvents {
		resp.Events = rhythm.DetectAbnormalRhythms(entries)
	}

	respondJSON(w, http.StatusOK, resp)
}

func periodSpan(period string) (time.Duration, bool, error) {
	switch period {
	case "minute":
		return time.Minute, true, nil
	case "hour":
		return time.Hour, true, nil
	case "day":
		return 24 * time.Hour, false, nil
	default:
		return 0, false, errors.New("invalid period, use minute, hour or day")
	}
}

func respondEntries(w http.ResponseWriter, entries []rhythm.HeartRateEntry) {
	if entries == nil {
		entries = []rhythm.HeartRateEntry{}
	}
	events := rhythm.DetectAbnormalRhythms(entries)

	respondJSON(w, http.StatusOK, EntriesResponse{
		Entries: entries,
		Events:  events,
		Count:   len(events),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[ERROR] Failed to encode JSON response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":  message,
		"status": status,
	})
}
