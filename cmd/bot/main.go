package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"teleautogram/internal/authflow"
	"teleautogram/internal/config"
	"teleautogram/internal/console"
	"teleautogram/internal/llm"
	"teleautogram/internal/notify"
	"teleautogram/internal/ratelimit"
	"teleautogram/internal/responder"
	"teleautogram/internal/scheduler"
	"teleautogram/internal/storage"
	"teleautogram/internal/transport"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		// Optional; environment variables may be set directly.
		_ = err
	}
	_ = godotenv.Overload(".env.local")

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.New()
	provider := config.NewProvider(cfg, logger)

	store, err := storage.New(cfg.DataDir, logger,
		storage.WithRetention(time.Duration(cfg.RetentionDays)*24*time.Hour),
		storage.WithLockCapacity(cfg.LockCapacity),
	)
	if err != nil {
		logger.Fatal("failed to init storage", zap.Error(err))
	}

	limiter := ratelimit.New(ratelimit.WithSweepThreshold(cfg.RateSweepThreshold))
	bridge := console.NewBridge(time.Duration(cfg.BridgeTimeoutSec) * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		tr   transport.Transport
		sess *authflow.Session
		orch *responder.Orchestrator
	)
	if cfg.IsConfigured() {
		snap := provider.Snapshot()
		factory := &llm.Factory{
			OpenaiAPIKey:     snap.OpenAIAPIKey,
			OpenaiBaseURL:    cfg.OpenAIBaseURL,
			YandexOAuthToken: cfg.YandexOAuthToken,
			YandexFolderID:   cfg.YandexFolderID,
		}
		backend, err := factory.CreateBackend(snap.LLMProvider, snap.OpenAIModel)
		if err != nil {
			logger.Fatal("failed to create llm backend", zap.Error(err))
		}

		tr = transport.NewBotAPI(cfg.TelegramBotToken, logger)
		sess = authflow.NewSession(tr, cfg.Phone, logger,
			authflow.WithInputTimeout(time.Duration(cfg.LoginTimeoutSec)*time.Second))

		persona := func() string {
			p, err := config.LoadIdentity(cfg.DataDir)
			if err != nil {
				logger.Warn("loading identity failed", zap.Error(err))
				return ""
			}
			return p
		}
		orch = responder.New(store, tr, backend, provider, persona, logger,
			responder.WithNotifier(notify.New(logger)))
	} else {
		logger.Warn("bot is not configured; only the console is available",
			zap.String("console", cfg.WebAddr))
	}

	cons := console.New(bridge, sess, orch, cfg, provider, limiter, logger)
	web := console.NewServer(cfg.WebAddr, cons, logger)
	go func() {
		if err := web.Run(ctx); err != nil {
			logger.Error("console server failed", zap.Error(err))
		}
	}()

	sched := scheduler.New(logger)
	_ = sched.Add("0 * * * *", "ratelimit-sweep", func() error {
		limiter.Sweep()
		return nil
	})
	if cfg.RetentionSweep {
		_ = sched.Add("0 3 * * *", "retention-sweep", store.SweepRetention)
	}
	sched.Start()
	defer sched.Stop()

	if orch == nil {
		<-ctx.Done()
		return
	}

	// The handshake runs concurrently so operator-input waits suspend only
	// the login flow; the dispatch loop below keeps serving console
	// requests meanwhile.
	handshake := make(chan error, 1)
	go func() { handshake <- sess.Run(ctx) }()
	defer func() { _ = tr.Disconnect() }()

	logger.Info("bot is running")
	hsDone := handshake
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case err := <-hsDone:
			if err != nil {
				logger.Error("login handshake failed", zap.Error(err))
			}
			hsDone = nil
		case req := <-bridge.Requests():
			req.Resolve()
		case in, ok := <-tr.Incoming():
			if !ok {
				logger.Info("transport stream closed")
				return
			}
			// During the handshake messages are persisted but not
			// answered, so a long operator wait loses nothing.
			if sess.State().Status != authflow.StatusAuthorized {
				orch.RecordIncoming(ctx, in)
				continue
			}
			orch.HandleIncoming(ctx, in)
		}
	}
}
