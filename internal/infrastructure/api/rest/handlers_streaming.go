package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/smilemakc/mbflow/internal/application/streaming"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// streamUpgrader permits cross-origin connections; the workflow UI is served
// from a different origin than the API during local development.
var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamingHandlers exposes the output streaming hub (C4) over both a
// plain-JSON replay endpoint and a live websocket feed.
type StreamingHandlers struct {
	hub    *streaming.Hub
	logger *logger.Logger
}

// NewStreamingHandlers creates a new StreamingHandlers instance.
func NewStreamingHandlers(hub *streaming.Hub, log *logger.Logger) *StreamingHandlers {
	return &StreamingHandlers{hub: hub, logger: log}
}

// HandleWatchExecution handles GET /api/v1/executions/{id}/watch, upgrading
// to a websocket and replaying cached events before streaming live ones.
func (h *StreamingHandlers) HandleWatchExecution(c *gin.Context) {
	executionID := c.Param("id")
	if executionID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err, "execution_id", executionID, "request_id", GetRequestID(c))
		return
	}
	defer conn.Close()

	subscriberID := uuid.NewString()
	sub, err := h.hub.Join(executionID, subscriberID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	defer sub.Close()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	// Drain inbound frames to notice client-initiated close and keep the
	// connection read loop alive per gorilla/websocket's contract.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleGetLogs handles GET /api/v1/executions/{id}/logs/stream, a
// non-websocket fallback that drains the replay cache once and returns.
func (h *StreamingHandlers) HandleGetLogs(c *gin.Context) {
	executionID := c.Param("id")
	if executionID == "" {
		respondAPIError(c, ErrMissingParameter)
		return
	}

	subscriberID := uuid.NewString()
	sub, err := h.hub.Join(executionID, subscriberID)
	if err != nil {
		respondAPIError(c, NewAPIError("TOPIC_NOT_FOUND", "execution has no active or recent stream", http.StatusNotFound))
		return
	}
	defer sub.Close()

	events := make([]interface{}, 0)
drain:
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				break drain
			}
			events = append(events, event)
		default:
			break drain
		}
	}

	respondJSON(c, http.StatusOK, gin.H{"logs": events, "total": len(events)})
}
