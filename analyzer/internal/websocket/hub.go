package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mujo0401/Fitness-Console/analyzer/internal/batch"
	"github.com/mujo0401/Fitness-Console/analyzer/internal/rhythm"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Hub рассылает результаты анализа подключенным дашбордам
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}

	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// Client - одно WebSocket соединение. Пустой sessionID - подписка на все сессии.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type outbound struct {
	sessionID string
	data      []byte
}

// AnalysisMessage - сообщение для фронтенда по одному окну
type AnalysisMessage struct {
	Type            string                 `json:"type"`
	SessionID       string                 `json:"session_id"`
	Date            string                 `json:"date"`
	Time            string                 `json:"time"`
	T0MS            int64                  `json:"t0_ms"`
	T1MS            int64                  `json:"t1_ms"`
	Samples         int                    `json:"samples"`
	MetricsComputed bool                   `json:"metrics_computed"`
	Metrics         rhythm.HRVMetrics      `json:"metrics"`
	Events          []rhythm.AbnormalEvent `json:"events"`
}

// NewHub создает Hub. allowedOrigin "*" разрешает любой Origin.
func NewHub(allowedOrigin string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
		},
	}
	return h
}

// Run обслуживает регистрацию клиентов и рассылку до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client registered: %p, session: %q", client, client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client unregistered: %p", client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != "" && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Медленный клиент отключается
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish реализует batch.Publisher
func (h *Hub) Publish(ctx context.Context, result *batch.Result) error {
	events := result.Analysis.Events
	if events == nil {
		events = []rhythm.AbnormalEvent{}
	}

	data, err := json.Marshal(AnalysisMessage{
		Type:            "analysis",
		SessionID:       result.SessionID,
		Date:            result.Analysis.Entry.Date,
		Time:            result.Analysis.Entry.Time,
		T0MS:            result.T0MS,
		T1MS:            result.T1MS,
		Samples:         len(result.Analysis.Entry.Values),
		MetricsComputed: result.Analysis.MetricsComputed,
		Metrics:         result.Analysis.Metrics,
		Events:          events,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- outbound{sessionID: result.SessionID, data: data}:
	default:
		log.Printf("[WARN] Broadcast channel full, dropping message for session %s", result.SessionID)
	}
	return nil
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket обрабатывает /ws?session_id=
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: r.URL.Query().Get("session_id"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump читает только служебные сообщения и отслеживает закрытие соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[ERROR] Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
