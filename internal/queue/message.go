package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageVersion is the current trigger payload version.
const MessageVersion = 1

// Message asks a worker to analyze one (owner, unit).
type Message struct {
	OwnerID    string `json:"ownerId"`
	UnitID     string `json:"unitId"`
	SessionTag string `json:"sessionTag,omitempty"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a trigger with a fresh request id.
func NewMessage(ownerID, unitID, sessionTag string, now time.Time) Message {
	return Message{
		OwnerID:    ownerID,
		UnitID:     unitID,
		SessionTag: sessionTag,
		RequestID:  uuid.NewString(),
		EnqueuedAt: now.UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
