package console

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"teleautogram/internal/authflow"
	"teleautogram/internal/config"
	"teleautogram/internal/ratelimit"
	"teleautogram/internal/responder"
	"teleautogram/internal/storage"
)

// ErrRateLimited is returned when a client exceeds its request budget.
var ErrRateLimited = errors.New("too many requests")

// ErrNotRunning is returned when a control call needs the bot side but the
// bot is not configured or not started.
var ErrNotRunning = errors.New("bot is not running")

// Console is the synchronous operator control surface. Reads of shared
// state go straight to the thread-safe components; anything that touches
// the conversation pipeline crosses the Bridge into the bot loop.
type Console struct {
	bridge   *Bridge
	session  *authflow.Session
	orch     *responder.Orchestrator
	base     *config.Config
	provider *config.Provider
	limiter  *ratelimit.Limiter
	logger   *zap.Logger
}

func New(bridge *Bridge, session *authflow.Session, orch *responder.Orchestrator, base *config.Config, provider *config.Provider, limiter *ratelimit.Limiter, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		bridge:   bridge,
		session:  session,
		orch:     orch,
		base:     base,
		provider: provider,
		limiter:  limiter,
		logger:   logger,
	}
}

func (c *Console) allowAuth(client string) error {
	if !c.limiter.Allow("auth:"+client, ratelimit.AuthLimit) {
		return ErrRateLimited
	}
	return nil
}

func (c *Console) allowGeneral(client string) error {
	if !c.limiter.Allow("general:"+client, ratelimit.GeneralLimit) {
		return ErrRateLimited
	}
	return nil
}

// SubmitLoginCode feeds a login code to the handshake wait.
func (c *Console) SubmitLoginCode(client, code string) error {
	if err := c.allowAuth(client); err != nil {
		return err
	}
	if c.session == nil {
		return ErrNotRunning
	}
	_, err := c.bridge.Do(func() (any, error) {
		c.session.SubmitCode(code)
		return nil, nil
	})
	return err
}

// SubmitLoginPassword feeds the second-factor password to the handshake wait.
func (c *Console) SubmitLoginPassword(client, password string) error {
	if err := c.allowAuth(client); err != nil {
		return err
	}
	if c.session == nil {
		return ErrNotRunning
	}
	_, err := c.bridge.Do(func() (any, error) {
		c.session.SubmitPassword(password)
		return nil, nil
	})
	return err
}

// AuthState returns the handshake snapshot; readable at any time.
func (c *Console) AuthState(client string) (authflow.State, error) {
	if err := c.allowGeneral(client); err != nil {
		return authflow.State{}, err
	}
	if c.session == nil {
		return authflow.State{Status: authflow.StatusDisconnected}, nil
	}
	return c.session.State(), nil
}

// SendManual delivers an operator-authored message, pre-empting any pending
// automated reply to that peer.
func (c *Console) SendManual(client string, peerID int64, text string) error {
	if err := c.allowGeneral(client); err != nil {
		return err
	}
	if c.orch == nil {
		return ErrNotRunning
	}
	_, err := c.bridge.Do(func() (any, error) {
		return nil, c.orch.SendManual(context.Background(), peerID, text)
	})
	return err
}

// Messages returns one conversation, or every conversation merged and
// time-sorted when senderID is nil.
func (c *Console) Messages(client string, senderID *int64) ([]storage.Message, error) {
	if err := c.allowGeneral(client); err != nil {
		return nil, err
	}
	if c.orch == nil {
		return nil, ErrNotRunning
	}
	v, err := c.bridge.Do(func() (any, error) {
		if senderID != nil {
			return c.orch.Conversation(*senderID, 0)
		}
		return c.orch.AllMessages()
	})
	if err != nil {
		return nil, err
	}
	msgs, _ := v.([]storage.Message)
	return msgs, nil
}

// GetConfig returns the editable settings with secrets masked.
func (c *Console) GetConfig(client string) (map[string]any, error) {
	if err := c.allowGeneral(client); err != nil {
		return nil, err
	}
	overlay, err := c.provider.Overlay()
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"API_ID":                c.base.APIID,
		"API_HASH":              c.base.APIHash,
		"PHONE":                 c.base.Phone,
		"TELEGRAM_BOT_TOKEN":    c.base.TelegramBotToken,
		"LLM_PROVIDER":          c.base.LLMProvider,
		"OPENAI_API_KEY":        c.base.OpenAIAPIKey,
		"OPENAI_MODEL":          c.base.OpenAIModel,
		"AUTO_RESPONSE_MESSAGE": c.base.AutoResponseMessage,
		"RESPONSE_DELAY_MIN":    c.base.ResponseDelayMin,
		"RESPONSE_DELAY_MAX":    c.base.ResponseDelayMax,
		"READ_ACK_DELAY_MIN":    c.base.ReadAckDelayMin,
		"READ_ACK_DELAY_MAX":    c.base.ReadAckDelayMax,
		"NOTIFY_API_URL":        c.base.NotifyAPIURL,
	}
	for k, v := range overlay {
		out[k] = v
	}
	for _, field := range config.MaskedFields {
		if s, ok := out[field].(string); ok && s != "" {
			out[field] = config.MaskValue(s)
		}
	}
	out["is_configured"] = c.base.IsConfigured()
	return out, nil
}

// SaveConfig stores operator-edited settings. A masked secret submitted
// unchanged keeps its stored value.
func (c *Console) SaveConfig(client string, data map[string]any) error {
	if err := c.allowGeneral(client); err != nil {
		return err
	}
	existing, err := c.provider.Overlay()
	if err != nil {
		return fmt.Errorf("load existing overlay: %w", err)
	}
	for _, field := range config.MaskedFields {
		if s, ok := data[field].(string); ok && config.IsMasked(s) {
			if prev, ok := existing[field]; ok {
				data[field] = prev
			} else {
				delete(data, field)
			}
		}
	}
	delete(data, "is_configured")
	return c.provider.SaveOverlay(data)
}
