package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMessageReceivedPostsPayload(t *testing.T) {
	var (
		mu          sync.Mutex
		got         map[string]string
		contentType string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer ts.Close()

	n := New(zap.NewNop())
	n.MessageReceived(context.Background(), ts.URL, "Alice", "moved to Berlin")

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Alice", got["sender"])
	assert.Equal(t, "moved to Berlin", got["summary"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestBlankURLSendsNothing(t *testing.T) {
	var requests int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer ts.Close()

	n := New(zap.NewNop())
	n.MessageReceived(context.Background(), "", "Alice", "anything")
	assert.Equal(t, 0, requests)
}

func TestFailuresAreSwallowed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	n := New(zap.NewNop())
	n.MessageReceived(context.Background(), ts.URL, "Alice", "summary")
	n.MessageReceived(context.Background(), "http://127.0.0.1:1/unreachable", "Alice", "summary")
}
