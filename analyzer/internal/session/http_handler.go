package session

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// HTTPHandler - REST API сессий поверх Manager
type HTTPHandler struct {
	manager *Manager
}

func NewHTTPHandler(manager *Manager) *HTTPHandler {
	return &HTTPHandler{manager: manager}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/sessions").Subrouter()

	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("", h.ListSessions).Methods("GET")
	api.HandleFunc("/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/{id}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{id}/stop", h.StopSession).Methods("POST")
	api.HandleFunc("/{id}/save", h.SaveSession).Methods("POST")
	api.HandleFunc("/{id}/metrics", h.GetSessionMetrics).Methods("GET")
	api.HandleFunc("/{id}/events", h.GetSessionEvents).Methods("GET")
	api.HandleFunc("/{id}/data", h.GetSessionData).Methods("GET")
}

// CreateSession открывает активную сессию, ID генерируется сервером
// @Summary Создать сессию
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Метаданные сессии"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions [post]
func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.manager.CreateSession(r.Context(), &req)
	if err != nil {
		h.fail(w, err, "create session")
		return
	}

	respondJSON(w, http.StatusCreated, SessionResponse{Session: session})
}

// ListSessions читает сохраненные сессии из Postgres постранично
// @Summary Список сессий
// @Tags Sessions
// @Produce json
// @Param limit query int false "Лимит, не больше 500" default(50)
// @Param offset query int false "Смещение" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions [get]
func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := getQueryInt(r, "limit", defaultListLimit)
	switch {
	case limit == 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	offset := getQueryInt(r, "offset", 0)

	sessions, err := h.manager.ListSessions(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, err, "list sessions")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    limit,
		"offset":   offset,
		"count":    len(sessions),
	})
}

// GetSession отдает сессию; метрики прикладываются, если окна уже были
// @Summary Получить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id} [get]
func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	session, err := h.manager.GetSession(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get session "+id)
		return
	}

	resp := SessionResponse{Session: session}
	if metrics, err := h.manager.GetSessionMetrics(r.Context(), id); err == nil {
		resp.Metrics = metrics
	}
	respondJSON(w, http.StatusOK, resp)
}

// StopSession - 409, если сессия уже не активна
// @Summary Остановить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/sessions/{id}/stop [post]
func (h *HTTPHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := h.manager.StopSession(r.Context(), id); err != nil {
		h.fail(w, err, "stop session "+id)
		return
	}
	respondAction(w, id, "stopped")
}

// SaveSession переносит сессию и ее метрики в Postgres
// @Summary Сохранить сессию
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "ID сессии"
// @Param request body SaveSessionRequest false "Заметки"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/save [post]
func (h *HTTPHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	// пустое тело допустимо, битый JSON - нет
	var req SaveSessionRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.manager.SaveSession(r.Context(), id, req.Notes); err != nil {
		h.fail(w, err, "save session "+id)
		return
	}
	respondAction(w, id, "saved")
}

// @Summary Удалить сессию
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions/{id} [delete]
func (h *HTTPHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := h.manager.DeleteSession(r.Context(), id); err != nil {
		h.fail(w, err, "delete session "+id)
		return
	}
	respondAction(w, id, "deleted")
}

// GetSessionMetrics - накопленные HRV-метрики
// @Summary Метрики сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionMetrics
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/metrics [get]
func (h *HTTPHandler) GetSessionMetrics(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	metrics, err := h.manager.GetSessionMetrics(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get metrics "+id)
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// GetSessionEvents возвращает события сессии, опционально одного типа
// @Summary События сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Param type query string false "Тип события" Enums(Tachycardia, Bradycardia, Sudden change, Low HRV, Potential AFib, Ectopic Beats)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/sessions/{id}/events [get]
func (h *HTTPHandler) GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	events, err := h.manager.GetSessionEvents(r.Context(), id, r.URL.Query().Get("type"))
	if err != nil {
		h.fail(w, err, "get events "+id)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"events":     events,
		"count":      len(events),
	})
}

// GetSessionData - сессия, метрики, события и сводки окон одним ответом
// @Summary Все данные сессии
// @Tags Sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionData
// @Failure 404 {object} map[string]interface{}
// @Router /api/sessions/{id}/data [get]
func (h *HTTPHandler) GetSessionData(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)

	data, err := h.manager.GetSessionData(r.Context(), id)
	if err != nil {
		h.fail(w, err, "get data "+id)
		return
	}
	respondJSON(w, http.StatusOK, data)
}

func sessionID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// fail отвечает кодом по sentinel-ошибке. Логируются только 5xx,
// ошибки клиента уходят в ответ как есть.
func (h *HTTPHandler) fail(w http.ResponseWriter, err error, op string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] Failed to %s: %v", op, err)
		respondError(w, status, "Failed to "+op)
		return
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrMetricsNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionNotActive):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownEventType):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondAction(w http.ResponseWriter, id, verb string) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session " + verb,
		"session_id": id,
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

func getQueryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
