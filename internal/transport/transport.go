package transport

import (
	"context"
	"errors"
	"time"
)

// Sign-in failures the login handshake distinguishes, checked with errors.Is.
var (
	ErrInvalidCode       = errors.New("invalid login code")
	ErrCodeExpired       = errors.New("login code expired")
	ErrNeedsSecondFactor = errors.New("password required")
	ErrInvalidPassword   = errors.New("invalid password")
)

// Incoming is one inbound platform event.
type Incoming struct {
	ChatID     int64
	MessageID  int64
	SenderID   int64
	SenderName string
	Text       string
	Private    bool
}

// PeerMessage is one entry of fetched platform history.
type PeerMessage struct {
	ID        int64
	Timestamp time.Time
	Outgoing  bool
	Sender    string
	Text      string
}

// Transport is the chat-platform client. The wire protocol is entirely the
// implementation's concern.
type Transport interface {
	Connect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)
	RequestLoginCode(ctx context.Context, identity string) error
	SignInWithCode(ctx context.Context, identity, code string) error
	SignInWithPassword(ctx context.Context, password string) error

	// Incoming returns the inbound event stream. Valid after Connect; the
	// channel closes on Disconnect.
	Incoming() <-chan Incoming

	SendMessage(ctx context.Context, peerID int64, text string) error
	AcknowledgeRead(ctx context.Context, chatID, messageID int64) error
	FetchHistory(ctx context.Context, peerID int64, limit int, beforeID int64) ([]PeerMessage, error)
	Disconnect() error
}
