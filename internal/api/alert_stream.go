package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/domain"
)

const (
	streamSendBuffer = 64
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10

	// AlertEventType tags every message on the alert stream
	AlertEventType = "clinical_alert"
)

// AlertEvent is one message on the alert stream
type AlertEvent struct {
	Type  string               `json:"type"`
	Alert domain.ClinicalAlert `json:"alert"`
}

type streamClient struct {
	id       string
	tenantID string
	send     chan []byte
}

// AlertHub fans freshly generated alerts out to websocket subscribers. Subscribers pick a
// tenant; an empty tenant receives every alert. A subscriber whose buffer is full misses
// the alert rather than blocking the pipeline.
type AlertHub struct {
	mu       sync.RWMutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewAlertHub creates a hub accepting websocket upgrades from the given origins
func NewAlertHub(allowedOrigins []string, logger *logrus.Logger) *AlertHub {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return &AlertHub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
		logger: logger,
	}
}

// Notify implements domain.AlertNotifier
func (h *AlertHub) Notify(alerts []domain.ClinicalAlert) {
	if len(alerts) == 0 {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, alert := range alerts {
		data, err := json.Marshal(AlertEvent{Type: AlertEventType, Alert: alert})
		if err != nil {
			h.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to encode alert event")
			continue
		}
		for client := range h.clients {
			if client.tenantID != "" && client.tenantID != alert.TenantID {
				continue
			}
			select {
			case client.send <- data:
			default:
				h.logger.WithFields(logrus.Fields{
					"client_id": client.id,
					"alert_id":  alert.ID,
				}).Warn("Alert stream subscriber is slow, dropping alert")
			}
		}
	}
}

// ClientCount returns the number of connected subscribers
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber
func (h *AlertHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *AlertHub) register(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
}

func (h *AlertHub) unregister(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

// HandleStream upgrades the request and streams alerts until the client disconnects
func (h *AlertHub) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		h.logger.WithError(err).Debug("Alert stream upgrade failed")
		return
	}

	client := &streamClient{
		id:       uuid.NewString(),
		tenantID: c.Query("tenantId"),
		send:     make(chan []byte, streamSendBuffer),
	}
	h.register(client)

	h.logger.WithFields(logrus.Fields{
		"client_id": client.id,
		"tenant_id": client.tenantID,
	}).Info("Alert stream subscriber connected")

	go h.writePump(client, conn)
	go h.readPump(client, conn)
}

// readPump only services control frames; subscribers do not send data.
func (h *AlertHub) readPump(client *streamClient, conn *websocket.Conn) {
	defer func() {
		h.unregister(client)
		conn.Close()
		h.logger.WithField("client_id", client.id).Info("Alert stream subscriber disconnected")
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *AlertHub) writePump(client *streamClient, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.AlertNotifier = (*AlertHub)(nil)
