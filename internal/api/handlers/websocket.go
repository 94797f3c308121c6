// Package handlers provides HTTP request handlers for the pingscan API.
// This file streams scan progress over WebSocket connections.
package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/output"
)

const (
	// WebSocket configuration constants.
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer

	defaultStreamInterval = time.Second
)

// Message types sent on a scan stream.
const (
	MessageScanUpdate   = "scan_update"
	MessageScanComplete = "scan_complete"
)

// WebSocketMessage represents a WebSocket message structure.
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// WebSocketHandler streams the progress of one scan per connection.
type WebSocketHandler struct {
	manager  ScanManager
	logger   *logging.Logger
	interval time.Duration
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler that pushes an update every
// interval until the scan is done.
func NewWebSocketHandler(manager ScanManager, logger *logging.Logger, interval time.Duration) *WebSocketHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &WebSocketHandler{
		manager:  manager,
		logger:   logger.WithComponent("websocket"),
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS is enforced by the router middleware
				return true
			},
		},
	}
}

// StreamScan handles GET /scans/{id}/stream. Unknown scans are rejected
// before the upgrade with a normal JSON error.
func (h *WebSocketHandler) StreamScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	job, err := h.manager.Get(id)
	if err != nil {
		writeCodedError(w, r, err)
		return
	}

	reqID := requestID(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "request_id", reqID, "error", err)
		return
	}
	h.logger.Debug("Scan stream opened", "request_id", reqID, "scan_id", id, "remote_addr", r.RemoteAddr)

	closed := make(chan struct{})
	go h.readPump(conn, reqID, closed)
	h.writePump(conn, job, reqID, closed)
}

// readPump drains client frames so control messages are processed, and
// signals when the peer goes away.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, reqID string, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket unexpected close", "request_id", reqID, "error", err)
			}
			return
		}
	}
}

// writePump sends scan updates until the scan is done, then the final
// results and a normal close frame.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, job *jobs.ScanJob, reqID string, closed <-chan struct{}) {
	updates := time.NewTicker(h.interval)
	pings := time.NewTicker(pingPeriod)
	defer func() {
		updates.Stop()
		pings.Stop()
		if err := conn.Close(); err != nil {
			h.logger.Debug("Error closing stream", "request_id", reqID, "error", err)
		}
	}()

	if !h.send(conn, reqID, MessageScanUpdate, job.Info()) {
		return
	}

	for {
		if job.Done() {
			h.complete(conn, job, reqID)
			return
		}

		select {
		case <-closed:
			return
		case <-pings.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("Ping failed, closing stream", "request_id", reqID, "error", err)
				return
			}
		case <-updates.C:
			if job.Done() {
				continue
			}
			if !h.send(conn, reqID, MessageScanUpdate, job.Info()) {
				return
			}
		}
	}
}

func (h *WebSocketHandler) complete(conn *websocket.Conn, job *jobs.ScanJob, reqID string) {
	response := ScanDetailResponse{Info: job.Info()}
	if snap := job.Results(); snap != nil {
		doc := output.NewDocument(snap)
		response.Results = &doc
	}
	if !h.send(conn, reqID, MessageScanComplete, response) {
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan "+job.Status()))
}

func (h *WebSocketHandler) send(conn *websocket.Conn, reqID, msgType string, data interface{}) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	err := conn.WriteJSON(WebSocketMessage{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
		RequestID: reqID,
	})
	if err != nil {
		h.logger.Debug("Failed to write stream message", "request_id", reqID, "type", msgType, "error", err)
		return false
	}
	return true
}
