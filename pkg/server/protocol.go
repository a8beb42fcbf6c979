package server

import (
	"encoding/json"
	"strconv"

	"github.com/embedmeet/embedmeet/pkg/events"
)

// WebSocket message types
const (
	MessageTypeSessionState = "session_state"
	MessageTypeParticipants = "participants"
	MessageTypeError        = "error"
	MessageTypeHeartbeat    = "heartbeat"
)

// SessionStateMessage notifies clients of a session state transition
type SessionStateMessage struct {
	Type         string `json:"type"`
	Room         string `json:"room"`
	State        string `json:"state"`
	Participants int    `json:"participants"`
	Error        string `json:"error,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// ErrorMessage is sent when an error occurs
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// HeartbeatMessage is sent periodically to keep connection alive
type HeartbeatMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// CreateSessionStateMessage encodes a bus event for WebSocket clients
func CreateSessionStateMessage(ev events.Event) ([]byte, error) {
	msgType := MessageTypeSessionState
	if ev.Type == events.TypeParticipants {
		msgType = MessageTypeParticipants
	}

	msg := SessionStateMessage{
		Type:         msgType,
		Room:         ev.Room,
		State:        ev.State,
		Participants: ev.Participants,
		Error:        ev.Error,
		Timestamp:    ev.Timestamp.UnixMilli(),
	}

	return json.Marshal(msg)
}

// CreateErrorMessage creates an error message
func CreateErrorMessage(errMsg string, code int) ([]byte, error) {
	msg := ErrorMessage{
		Type:  MessageTypeError,
		Error: errMsg,
		Code:  code,
	}

	return json.Marshal(msg)
}

// CreateHeartbeatMessage creates a heartbeat message
func CreateHeartbeatMessage(timestamp int64) ([]byte, error) {
	msg := HeartbeatMessage{
		Type:      MessageTypeHeartbeat,
		Timestamp: timestamp,
	}

	return json.Marshal(msg)
}

// ConnectionConfig holds configuration for event stream connections
type ConnectionConfig struct {
	Room      string
	QueueSize int
}

// ParseConnectionConfig parses connection configuration from query parameters
func ParseConnectionConfig(params map[string][]string) *ConnectionConfig {
	config := &ConnectionConfig{
		QueueSize: 100,
	}

	if sizes, ok := params["queue_size"]; ok && len(sizes) > 0 {
		if size, err := strconv.Atoi(sizes[0]); err == nil && size > 0 {
			config.QueueSize = size
		}
	}

	return config
}
