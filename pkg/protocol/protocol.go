// Package protocol defines the frames exchanged over the booking channel.
// Every frame is a JSON text message {"event": <name>, "data": <payload>}.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names a frame
type Event string

const (
	// Client → Server
	EventNewBooking          Event = "newBooking"
	EventConfirmOrder        Event = "confirmOrder"
	EventUpdatePaymentStatus Event = "updatePaymentStatus"
	EventRegister            Event = "register"
	EventLogin               Event = "login"
	EventDisconnect          Event = "disconnect"

	// Server → Client
	EventLoadOrders           Event = "loadOrders"
	EventOrderUpdate          Event = "orderUpdate"
	EventOrderConfirmed       Event = "orderConfirmed"
	EventPaymentStatusUpdated Event = "paymentStatusUpdated"
	EventAuthError            Event = "authError"
	EventRegisterError        Event = "registerError"
	EventRegisterSuccess      Event = "registerSuccess"
	EventLoginError           Event = "loginError"
	EventLoginSuccess         Event = "loginSuccess"
)

// Error messages carried by the error events
const (
	MessageAuthError     = "You must be logged in to book"
	MessageRegisterError = "Email đã được sử dụng"
	MessageLoginError    = "Email hoặc mật khẩu không đúng"
)

// Envelope is one frame on the wire
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data as the payload of event
func NewEnvelope(event Event, data interface{}) (*Envelope, error) {
	env := &Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	if raw, ok := data.(json.RawMessage); ok {
		env.Data = raw
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// Encode builds the text frame for event and data
func Encode(event Event, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a text frame
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode frame: missing event name")
	}
	return &env, nil
}

// DecodeData unmarshals the payload into v
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	return json.Unmarshal(e.Data, v)
}
