package gateway

import (
	"encoding/json"

	"AmoraGateway/tools/errs"
)

// Frame is the wire unit: a named event with an opaque JSON payload and
// an optional acknowledgment id the sender wants echoed back.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ack_id,omitempty"`
}

// AuthData is the payload of the client's "auth" frame, the fallback
// token channel when no session cookie was sent.
type AuthData struct {
	Token string `json:"token"`
}

// AckData is the structured acknowledgment payload. Reason is one of
// the errs reason strings when Allowed is false.
type AckData struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// OnlineSetData carries a recipient's filtered list of currently online
// matches.
type OnlineSetData struct {
	Users []string `json:"users"`
}

const (
	eventAuth      = "auth"
	eventAck       = "ack"
	eventError     = "error"
	eventPing      = "ping"
	eventPong      = "pong"
	eventOnlineSet = "presence:online"
)

// ParseFrame decodes one inbound message. A frame without an event name
// is unusable and rejected.
func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrBadFrame.WithDetail(err.Error())
	}
	if f.Event == "" {
		return nil, errs.ErrBadFrame.WithDetail("missing event name")
	}
	return &f, nil
}

func marshalFrame(event string, data interface{}, ackID string) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			// All frame payloads are plain structs; a marshal failure
			// here is a programming error.
			panic(err)
		}
		raw = b
	}
	out, err := json.Marshal(Frame{Event: event, Data: raw, AckID: ackID})
	if err != nil {
		panic(err)
	}
	return out
}

// BuildAck builds the acknowledgment for an inbound frame that carried
// an ack id.
func BuildAck(ackID string, allowed bool, reason string) []byte {
	return marshalFrame(eventAck, AckData{Allowed: allowed, Reason: reason}, ackID)
}

// BuildError builds the rejection used when the inbound frame carried
// no ack id; the sender is never left without a response.
func BuildError(reason string) []byte {
	return marshalFrame(eventError, AckData{Allowed: false, Reason: reason}, "")
}

// BuildOnlineSet builds the presence push for one recipient.
func BuildOnlineSet(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	return marshalFrame(eventOnlineSet, OnlineSetData{Users: users}, "")
}

func buildPong() []byte {
	return marshalFrame(eventPong, nil, "")
}
