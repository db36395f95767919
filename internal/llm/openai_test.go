package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"teleautogram/internal/storage"
)

func TestOpenAIEmptyChoicesReturnsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[]}`))
	}))
	defer ts.Close()

	c := NewOpenAI("test-key", ts.URL+"/v1", "gpt-4o-mini")

	if _, err := c.Respond(context.Background(), RespondRequest{Incoming: "hi"}); err == nil {
		t.Fatal("expected an error for a completion without choices")
	}

	existing := "- likes tea\n"
	got, err := c.UpdateProfile(context.Background(), ProfileRequest{
		Existing:   existing,
		History:    []storage.Message{{Direction: storage.DirectionReceived, Sender: "Alice", Text: "hello there"}},
		SenderName: "Alice",
	})
	if err == nil {
		t.Fatal("expected an error for a completion without choices")
	}
	if got != existing {
		t.Fatalf("profile changed on failure: got %q, want %q", got, existing)
	}
}
