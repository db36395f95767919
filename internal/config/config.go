package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

// Config is the process-level configuration parsed from the environment
// once at startup. Tunables that may change at runtime live in the overlay
// file and are resolved per message by Provider.Snapshot.
type Config struct {
	// Platform credentials
	APIID   string `env:"API_ID"`
	APIHash string `env:"API_HASH"`
	Phone   string `env:"PHONE"`
	// Bot API adapter token (alternative to the user-session credentials)
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	// LLM settings
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string `env:"OPENAI_BASE_URL"`
	OpenAIModel      string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string `env:"YANDEX_FOLDER_ID"`

	// Auto-response behavior
	AutoResponseMessage string `env:"AUTO_RESPONSE_MESSAGE" envDefault:"I will get back to you shortly. Please wait a moment."`
	ResponseDelayMin    int    `env:"RESPONSE_DELAY_MIN" envDefault:"3"`
	ResponseDelayMax    int    `env:"RESPONSE_DELAY_MAX" envDefault:"10"`
	ReadAckDelayMin     int    `env:"READ_ACK_DELAY_MIN" envDefault:"1"`
	ReadAckDelayMax     int    `env:"READ_ACK_DELAY_MAX" envDefault:"5"`
	HistoryFetchLimit   int    `env:"HISTORY_FETCH_LIMIT" envDefault:"50"`
	HistoryLookback     int    `env:"HISTORY_LOOKBACK" envDefault:"20"`

	// Optional webhook receiving {timestamp, sender, summary} per received
	// message. Blank disables it.
	NotifyAPIURL string `env:"NOTIFY_API_URL"`

	// Storage
	DataDir       string `env:"DATA_DIR" envDefault:"data"`
	RetentionDays int    `env:"RETENTION_DAYS" envDefault:"7"`
	LockCapacity  int    `env:"LOCK_CAPACITY" envDefault:"1000"`

	// Control surface
	WebAddr            string `env:"WEB_ADDR" envDefault:"127.0.0.1:5000"`
	BridgeTimeoutSec   int    `env:"BRIDGE_TIMEOUT" envDefault:"10"`
	LoginTimeoutSec    int    `env:"LOGIN_TIMEOUT" envDefault:"600"`
	RateSweepThreshold int    `env:"RATE_SWEEP_THRESHOLD" envDefault:"1000"`

	// Opt-in daily sweep over all sender records; retention is otherwise
	// enforced lazily on read.
	RetentionSweep bool `env:"RETENTION_SWEEP" envDefault:"false"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// IsConfigured reports whether either credential set is present: a user
// session (api id/hash + phone) or a bot token.
func (c *Config) IsConfigured() bool {
	if c.TelegramBotToken != "" {
		return true
	}
	return c.APIID != "" && c.APIHash != "" && c.Phone != ""
}
