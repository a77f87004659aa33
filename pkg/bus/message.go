// Package bus carries the control-plane protocol: commands arrive on a redis
// list, lifecycle events go out over redis pub/sub and optionally kafka.
package bus

import "encoding/json"

// CommandType is an inbound instruction from the operator frontend.
type CommandType string

const (
	CommandConnect CommandType = "CONNECT"
	CommandStart   CommandType = "START"
	CommandUpdate  CommandType = "UPDATE"
	CommandStop    CommandType = "STOP"
)

// EventType is an outbound notification to the operator frontend.
type EventType string

const (
	EventStarted        EventType = "STARTED"
	EventStrategyUpdate EventType = "STRATEGY_UPDATE"
	EventPositions      EventType = "POSITIONS"
	EventPnL            EventType = "PNL"
	EventLTP            EventType = "LTP"
	EventError          EventType = "ERROR"
	EventEnd            EventType = "END"
)

// Command is the inbound envelope.
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the outbound envelope.
type Event struct {
	Type         EventType   `json:"type"`
	Data         interface{} `json:"data"`
	ErrorCode    int         `json:"error_code"`
	ErrorMessage string      `json:"error_message"`
}

func NewEvent(t EventType, data interface{}) Event {
	return Event{Type: t, Data: data}
}

func NewErrorEvent(code int, message string) Event {
	return Event{Type: EventError, ErrorCode: code, ErrorMessage: message}
}
