package entity

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrUnknownMessage is returned for message tags outside the closed set.
// Unrecognized messages are rejected, never matched on loose field shapes.
var ErrUnknownMessage = errors.New("unknown message type")

// Message tags exchanged between page controllers and the sync worker.
const (
	MessageSetZone       = "set-zone"
	MessageTriggerPoll   = "trigger-poll"
	MessageRequestState  = "request-state"
	MessageClearBadge    = "clear-badge"
	MessageSetDataOrigin = "set-data-origin"
	MessageDevNotify     = "dev-notify"

	MessageState        = "state"
	MessageStateUpdated = "state-updated"
	MessageNewPrices    = "new-prices"
)

// Message is one member of the closed page⇄worker protocol union.
type Message interface {
	MessageType() string
}

// SetZone asks the worker to watch a zone (nil zone stops watching). The
// optional timestamp covers "I already saw the latest data, don't re-announce".
type SetZone struct {
	Zone          *string `json:"zone"`
	LastTimestamp *string `json:"lastTimestamp,omitempty"`
}

// MessageType implements Message.
func (SetZone) MessageType() string { return MessageSetZone }

// TriggerPoll asks the worker to poll now; SkipDelay bypasses the jitter.
type TriggerPoll struct {
	SkipDelay bool `json:"skipDelay"`
}

// MessageType implements Message.
func (TriggerPoll) MessageType() string { return MessageTriggerPoll }

// RequestState asks the worker to reply with its current WatchState.
type RequestState struct{}

// MessageType implements Message.
func (RequestState) MessageType() string { return MessageRequestState }

// ClearBadge asks the worker to drop the platform badge indicator.
type ClearBadge struct{}

// MessageType implements Message.
func (ClearBadge) MessageType() string { return MessageClearBadge }

// SetDataOrigin reconfigures where price data is fetched from.
type SetDataOrigin struct {
	Origin string       `json:"origin"`
	Preset OriginPreset `json:"preset,omitempty"`
}

// MessageType implements Message.
func (SetDataOrigin) MessageType() string { return MessageSetDataOrigin }

// DevNotify raises a test notification. Dev harness only.
type DevNotify struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
}

// MessageType implements Message.
func (DevNotify) MessageType() string { return MessageDevNotify }

// State is the worker's reply to RequestState.
type State struct {
	State WatchState `json:"state"`
}

// MessageType implements Message.
func (State) MessageType() string { return MessageState }

// StateUpdated is relayed to every attached page after the worker persists
// a new WatchState.
type StateUpdated struct {
	State WatchState `json:"state"`
}

// MessageType implements Message.
func (StateUpdated) MessageType() string { return MessageStateUpdated }

// NewPrices announces a fresh price timestamp to attached pages.
type NewPrices struct {
	Zone      string `json:"zone"`
	Timestamp string `json:"timestamp"`
}

// MessageType implements Message.
func (NewPrices) MessageType() string { return MessageNewPrices }

// EncodeMessage serializes a message with its tag folded into the object,
// e.g. {"type":"set-zone","zone":"SE3"}.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message payload")
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, errors.Wrap(err, "flatten message payload")
	}

	typeTag, err := json.Marshal(msg.MessageType())
	if err != nil {
		return nil, errors.Wrap(err, "marshal message tag")
	}
	fields["type"] = typeTag

	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}

	return encoded, nil
}

// DecodeMessage parses a tagged message. Tags outside the closed union fail
// with ErrUnknownMessage.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(err, "parse message envelope")
	}

	switch envelope.Type {
	case MessageSetZone:
		return decodeAs[SetZone](data)
	case MessageTriggerPoll:
		return decodeAs[TriggerPoll](data)
	case MessageRequestState:
		return decodeAs[RequestState](data)
	case MessageClearBadge:
		return decodeAs[ClearBadge](data)
	case MessageSetDataOrigin:
		return decodeAs[SetDataOrigin](data)
	case MessageDevNotify:
		return decodeAs[DevNotify](data)
	case MessageState:
		return decodeAs[State](data)
	case MessageStateUpdated:
		return decodeAs[StateUpdated](data)
	case MessageNewPrices:
		return decodeAs[NewPrices](data)
	default:
		return nil, errors.Wrapf(ErrUnknownMessage, "%q", envelope.Type)
	}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrapf(err, "parse %s message", msg.MessageType())
	}

	return msg, nil
}
