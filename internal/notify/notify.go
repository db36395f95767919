package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds each webhook request.
const DefaultTimeout = 10 * time.Second

type payload struct {
	Timestamp string `json:"timestamp"`
	Sender    string `json:"sender"`
	Summary   string `json:"summary"`
}

// Notifier posts message digests to an operator-configured webhook. It is
// fire and forget: failures are logged and swallowed, never surfaced to the
// message pipeline.
type Notifier struct {
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: logger,
		now:    time.Now,
	}
}

// MessageReceived posts {timestamp, sender, summary} to url. A blank url
// disables the hook.
func (n *Notifier) MessageReceived(ctx context.Context, url, sender, summary string) {
	if url == "" {
		return
	}
	body, err := json.Marshal(payload{
		Timestamp: n.now().Format(time.RFC3339),
		Sender:    sender,
		Summary:   summary,
	})
	if err != nil {
		n.logger.Warn("encoding notify payload failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("building notify request failed", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notify webhook failed", zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		n.logger.Warn("notify webhook rejected", zap.Int("status", resp.StatusCode))
	}
}
