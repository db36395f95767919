package transport

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BotAPI adapts the Telegram Bot API to the Transport contract. Bot tokens
// authorize at connect time, so the interactive code/password flow never
// runs against this adapter; history fetch and read receipts are not part
// of the Bot API and degrade to no-ops.
type BotAPI struct {
	token    string
	logger   *zap.Logger
	api      *tgbotapi.BotAPI
	incoming chan Incoming
	cancel   context.CancelFunc
}

func NewBotAPI(token string, logger *zap.Logger) *BotAPI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BotAPI{
		token:    token,
		logger:   logger,
		incoming: make(chan Incoming, 64),
	}
}

func (b *BotAPI) Connect(ctx context.Context) error {
	api, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return err
	}
	b.api = api

	ctx, b.cancel = context.WithCancel(ctx)
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go b.pump(ctx, updates)
	return nil
}

func (b *BotAPI) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer close(b.incoming)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			msg := update.Message
			select {
			case b.incoming <- Incoming{
				ChatID:     msg.Chat.ID,
				MessageID:  int64(msg.MessageID),
				SenderID:   msg.From.ID,
				SenderName: displayName(msg.From),
				Text:       msg.Text,
				Private:    msg.Chat.IsPrivate(),
			}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strconv.FormatInt(u.ID, 10)
}

func (b *BotAPI) IsAuthorized(ctx context.Context) (bool, error) {
	return b.api != nil, nil
}

func (b *BotAPI) RequestLoginCode(ctx context.Context, identity string) error {
	return errors.New("bot api sessions authorize with a token, not a login code")
}

func (b *BotAPI) SignInWithCode(ctx context.Context, identity, code string) error {
	return errors.New("bot api sessions authorize with a token, not a login code")
}

func (b *BotAPI) SignInWithPassword(ctx context.Context, password string) error {
	return errors.New("bot api sessions authorize with a token, not a password")
}

func (b *BotAPI) Incoming() <-chan Incoming { return b.incoming }

func (b *BotAPI) SendMessage(ctx context.Context, peerID int64, text string) error {
	if b.api == nil {
		return errors.New("not connected")
	}
	_, err := b.api.Send(tgbotapi.NewMessage(peerID, text))
	return err
}

// AcknowledgeRead is a no-op: the Bot API exposes no read receipts.
func (b *BotAPI) AcknowledgeRead(ctx context.Context, chatID, messageID int64) error {
	return nil
}

// FetchHistory returns nothing: the Bot API cannot page private chat
// history, so backfill is an empty import for this adapter.
func (b *BotAPI) FetchHistory(ctx context.Context, peerID int64, limit int, beforeID int64) ([]PeerMessage, error) {
	return nil, nil
}

func (b *BotAPI) Disconnect() error {
	if b.cancel != nil {
		b.cancel()
	}
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
	return nil
}
