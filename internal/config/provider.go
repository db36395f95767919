package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const overlayFileName = "config.json"

// DelayRange is a validated [Min, Max] duration pair.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Snapshot is the per-message view of the tunables: environment values with
// the overlay file applied and every numeric range validated. Invalid
// values fall back to their per-field defaults, never to an error.
type Snapshot struct {
	AutoResponseMessage string
	ResponseDelay       DelayRange
	ReadAckDelay        DelayRange
	HistoryFetchLimit   int
	HistoryLookback     int
	NotifyAPIURL        string
	LLMProvider         string
	OpenAIAPIKey        string
	OpenAIModel         string
}

// Provider resolves a fresh Snapshot on demand so settings edited through
// the console apply without a restart.
type Provider struct {
	base   *Config
	path   string
	logger *zap.Logger
}

func NewProvider(base *Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		base:   base,
		path:   filepath.Join(base.DataDir, overlayFileName),
		logger: logger,
	}
}

// Overlay returns the raw overlay map, empty when the file does not exist.
func (p *Provider) Overlay() (map[string]any, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	overlay := map[string]any{}
	if err := json.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	return overlay, nil
}

// SaveOverlay replaces the overlay file.
func (p *Provider) SaveOverlay(overlay map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	data, err := json.MarshalIndent(overlay, "", "  ")
	if err != nil {
		return fmt.Errorf("encode overlay: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write overlay: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace overlay: %w", err)
	}
	return nil
}

// Snapshot merges the environment config with the overlay file.
func (p *Provider) Snapshot() Snapshot {
	overlay, err := p.Overlay()
	if err != nil {
		p.logger.Warn("config overlay unreadable, using environment values", zap.Error(err))
		overlay = map[string]any{}
	}

	snap := Snapshot{
		AutoResponseMessage: stringOr(overlay, "AUTO_RESPONSE_MESSAGE", p.base.AutoResponseMessage),
		HistoryFetchLimit:   positiveIntOr(overlay, "HISTORY_FETCH_LIMIT", p.base.HistoryFetchLimit, 50),
		HistoryLookback:     positiveIntOr(overlay, "HISTORY_LOOKBACK", p.base.HistoryLookback, 20),
		NotifyAPIURL:        stringOr(overlay, "NOTIFY_API_URL", p.base.NotifyAPIURL),
		LLMProvider:         stringOr(overlay, "LLM_PROVIDER", p.base.LLMProvider),
		OpenAIAPIKey:        stringOr(overlay, "OPENAI_API_KEY", p.base.OpenAIAPIKey),
		OpenAIModel:         stringOr(overlay, "OPENAI_MODEL", p.base.OpenAIModel),
	}
	snap.ResponseDelay = normalizeRange(
		intOr(overlay, "RESPONSE_DELAY_MIN", p.base.ResponseDelayMin),
		intOr(overlay, "RESPONSE_DELAY_MAX", p.base.ResponseDelayMax),
		3, 10,
	)
	snap.ReadAckDelay = normalizeRange(
		intOr(overlay, "READ_ACK_DELAY_MIN", p.base.ReadAckDelayMin),
		intOr(overlay, "READ_ACK_DELAY_MAX", p.base.ReadAckDelayMax),
		1, 5,
	)
	return snap
}

// normalizeRange validates a seconds range: non-positive values take the
// per-field defaults, an inverted pair is swapped.
func normalizeRange(minSec, maxSec, defMin, defMax int) DelayRange {
	if minSec <= 0 {
		minSec = defMin
	}
	if maxSec <= 0 {
		maxSec = defMax
	}
	if minSec > maxSec {
		minSec, maxSec = maxSec, minSec
	}
	return DelayRange{
		Min: time.Duration(minSec) * time.Second,
		Max: time.Duration(maxSec) * time.Second,
	}
}

func stringOr(overlay map[string]any, key, def string) string {
	if v, ok := overlay[key].(string); ok && v != "" {
		return v
	}
	return def
}

// intOr reads an overlay number that may arrive as float64 (JSON) or a
// numeric string (form input). A string that is not entirely a number falls
// back to def.
func intOr(overlay map[string]any, key string, def int) int {
	switch v := overlay[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func positiveIntOr(overlay map[string]any, key string, base, def int) int {
	n := intOr(overlay, key, base)
	if n <= 0 {
		return def
	}
	return n
}
