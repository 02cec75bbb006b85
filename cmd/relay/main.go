package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"relay-agent/internal/config"
	"relay-agent/internal/conversation"
	"relay-agent/internal/inference"
	"relay-agent/internal/integrations/paramstore"
	"relay-agent/internal/integrations/telegram"
	"relay-agent/internal/logging"
	"relay-agent/internal/relay"
	"relay-agent/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger); err != nil {
		logger.Error("relay exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	// ---- Configuration (read only here) ----
	secrets, err := secretGetter(ctx)
	if err != nil {
		return err
	}
	cfg, err := config.Load(ctx, os.Getenv, secrets)
	if err != nil {
		return err
	}

	// ---- Inference backend ----
	backend, err := inference.NewBackend(cfg, inference.Deps{Logger: logger})
	if err != nil {
		return err
	}
	dispatcher, err := usecase.NewDispatcher(conversation.New(cfg.MaxHistory), backend, logger, cfg.DispatchTimeout)
	if err != nil {
		return err
	}

	// ---- Transport ----
	tg, err := telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramPollTimeout, telegram.WithSendRate(cfg.TelegramSendsPerSecond))
	if err != nil {
		return err
	}
	bridge, err := relay.NewBridge(tg, dispatcher, logger, 0)
	if err != nil {
		return err
	}

	logger.Info("relay starting",
		zap.String("bot", cfg.BotName),
		zap.String("provider", string(cfg.Provider)),
		zap.Bool("resolves_model", backend.RequiresResolution()),
		zap.Int("max_history", cfg.MaxHistory),
	)
	return bridge.Run(ctx)
}

// secretGetter returns an SSM-backed getter when PARAM_PREFIX is set, nil otherwise.
func secretGetter(ctx context.Context) (config.SecretGetter, error) {
	if strings.TrimSpace(os.Getenv("PARAM_PREFIX")) == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return paramstore.NewFromConfig(awsCfg)
}
