package models

import (
	"encoding/json"
)

// Message types exchanged over the websocket link
const (
	MessageTypeHello      = "hello"
	MessageTypeValidate   = "validate"
	MessageTypeConnection = "connection"
	MessageTypeReturn     = "return"
	MessageTypeError      = "error"
	MessageTypeGet        = "get"
	MessageTypeSet        = "set"
	MessageTypeClose      = "close"
)

// Error kinds carried in ErrorMessage
const (
	ErrorKindType = "TypeError"
	ErrorKindKey  = "KeyError"
)

// ClientMessage is the decoded form of any inbound client document.
// Fields other than Type are populated depending on the type. Listener
// is kept raw so a present-but-null value can be told apart from an
// absent one.
type ClientMessage struct {
	Type       string                     `json:"type"`
	Token      *string                    `json:"token,omitempty"`
	Listener   json.RawMessage            `json:"listener,omitempty"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
}

// HasListener reports whether the listener key was present at all
func (m *ClientMessage) HasListener() bool {
	return m.Listener != nil
}

// ListenerValue returns the listener interval in milliseconds.
// ok is false when the value is null or not a number.
func (m *ClientMessage) ListenerValue() (float64, bool) {
	var v float64
	if err := json.Unmarshal(m.Listener, &v); err != nil {
		return 0, false
	}
	return v, true
}

// ListenerIsNull reports whether the listener key carried an explicit null
func (m *ClientMessage) ListenerIsNull() bool {
	return string(m.Listener) == "null"
}

// HelloMessage is sent once, immediately on connect
type HelloMessage struct {
	Type string `json:"type"`
	Salt string `json:"salt"`
}

// NewHelloMessage creates a hello message carrying the session salt
func NewHelloMessage(salt string) HelloMessage {
	return HelloMessage{Type: MessageTypeHello, Salt: salt}
}

// ValidateResultMessage is the handshake result
type ValidateResultMessage struct {
	Type   string `json:"type"`
	Status bool   `json:"status"`
}

// NewValidateResultMessage creates a handshake result message
func NewValidateResultMessage(status bool) ValidateResultMessage {
	return ValidateResultMessage{Type: MessageTypeValidate, Status: status}
}

// ConnectionMessage is the supervisor status broadcast
type ConnectionMessage struct {
	Type string         `json:"type"`
	Data ConnectionData `json:"data"`
}

// ConnectionData is the payload of a ConnectionMessage
type ConnectionData struct {
	Connected bool `json:"connected"`
}

// NewConnectionMessage creates a supervisor status message
func NewConnectionMessage(connected bool) ConnectionMessage {
	return ConnectionMessage{
		Type: MessageTypeConnection,
		Data: ConnectionData{Connected: connected},
	}
}

// ReturnMessage carries an attribute snapshot back to the client
type ReturnMessage struct {
	Type         string             `json:"type"`
	FromListener bool               `json:"fromListener"`
	Attributes   *AttributeSnapshot `json:"attributes"`
}

// NewReturnMessage creates a snapshot response
func NewReturnMessage(fromListener bool, attrs *AttributeSnapshot) ReturnMessage {
	return ReturnMessage{
		Type:         MessageTypeReturn,
		FromListener: fromListener,
		Attributes:   attrs,
	}
}

// ErrorMessage reports a dispatch-time error in-band
type ErrorMessage struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the error kind and a human-readable message
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage creates a dispatch error message
func NewErrorMessage(kind, message string) ErrorMessage {
	return ErrorMessage{
		Type:  MessageTypeError,
		Error: ErrorDetail{Type: kind, Message: message},
	}
}
