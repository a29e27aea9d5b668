package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/photosync/photosync/internal/observability"
	"github.com/photosync/photosync/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams hub events to websocket clients
type WebSocketHandler struct {
	hub          *services.WebSocketHub
	defaultTopic string
}

// NewWebSocketHandler creates a handler whose clients start subscribed to defaultTopic
func NewWebSocketHandler(hub *services.WebSocketHub, defaultTopic string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		defaultTopic: defaultTopic,
	}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)
	h.hub.Register(client)
	if h.defaultTopic != "" {
		h.hub.Subscribe(client, h.defaultTopic)
	}

	go client.WritePump()
	client.ReadPump(h.handleMessage)
}

// handleMessage processes subscription changes and pings
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg services.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		observability.Debugf("Invalid WebSocket message: %v", err)
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe:
		if topic := topicOf(msg.Payload); topic != "" {
			h.hub.Subscribe(client, topic)
		}

	case services.WSTypeUnsubscribe:
		if topic := topicOf(msg.Payload); topic != "" {
			h.hub.Unsubscribe(client, topic)
		}

	case services.WSTypePing:
		if data, err := json.Marshal(services.WSMessage{Type: services.WSTypePong}); err == nil {
			select {
			case client.Send <- data:
			default:
			}
		}

	default:
		observability.Debugf("Unknown WebSocket message type: %s", msg.Type)
	}
}

// topicOf accepts either "topic" or {"topic": "topic"} as payload
func topicOf(payload interface{}) string {
	switch p := payload.(type) {
	case string:
		return p
	case map[string]interface{}:
		if topic, ok := p["topic"].(string); ok {
			return topic
		}
	}
	return ""
}
