package llm

import (
	"context"
	"strings"

	"teleautogram/internal/storage"
)

// RespondRequest carries everything a backend may use to draft a reply:
// capped oldest-first history, the operator persona, the learned sender
// profile and the newest incoming text.
type RespondRequest struct {
	History    []storage.Message
	Persona    string
	Profile    string
	SenderName string
	Incoming   string
}

// Responder drafts replies. An error means the backend is unavailable and
// the caller should fall back; implementations never panic across this
// boundary.
type Responder interface {
	Respond(ctx context.Context, req RespondRequest) (string, error)
}

// ProfileRequest carries the existing profile and the conversation slice the
// update should be derived from. FullHistory marks the one-time build over a
// backfilled conversation.
type ProfileRequest struct {
	Existing    string
	History     []storage.Message
	SenderName  string
	FullHistory bool
}

// ProfileUpdater revises a sender profile. On backend failure the existing
// profile comes back unchanged.
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, req ProfileRequest) (string, error)
}

// Backend is what the provider factory hands out.
type Backend interface {
	Responder
	ProfileUpdater
}

// renderConversation flattens history into "Me:"/"<name>:" lines. Consecutive
// turns in the same direction are merged so platform message bursts do not
// show up as artificial dialogue steps.
func renderConversation(history []storage.Message, senderName string) string {
	var (
		b    strings.Builder
		last storage.Direction
	)
	for i, m := range history {
		if i > 0 && m.Direction == last {
			b.WriteString("\n")
			b.WriteString(m.Text)
			continue
		}
		if i > 0 {
			b.WriteString("\n")
		}
		if m.Direction == storage.DirectionSent {
			b.WriteString("Me: ")
		} else {
			b.WriteString(senderName + ": ")
		}
		b.WriteString(m.Text)
		last = m.Direction
	}
	return b.String()
}
