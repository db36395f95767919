package storage

import (
	"strconv"
	"time"
)

type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// FallbackSenderKey is the bucket used for messages that carry no sender id.
const FallbackSenderKey = "_unknown"

// Message is a single conversation entry. Entries are immutable once written;
// only retention pruning removes them.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Summary   string    `json:"summary,omitempty"`
	SenderID  int64     `json:"sender_id,omitempty"`
}

// SenderKey maps a sender id onto the storage bucket. Zero means the id was
// absent on the platform event.
func SenderKey(senderID int64) string {
	if senderID == 0 {
		return FallbackSenderKey
	}
	return strconv.FormatInt(senderID, 10)
}
