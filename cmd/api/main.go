// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/config"
	"github.com/capitalize-ai/chat-console/internal/handler"
	"github.com/capitalize-ai/chat-console/internal/jobs"
	"github.com/capitalize-ai/chat-console/internal/llm"
	natsclient "github.com/capitalize-ai/chat-console/internal/nats"
	"github.com/capitalize-ai/chat-console/internal/security"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/internal/storage"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")
	ctx := context.Background()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-console", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Journal is optional: without NATS_URL conversations live in memory only.
	var (
		journal    service.Journal = service.NopJournal{}
		natsClient *natsclient.Client
	)
	if cfg.NATS.URL != "" {
		c, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
			Token:    cfg.NATS.Token,
		}, log)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer c.Close()

		j := natsclient.NewJournal(c)
		if err := j.EnsureStream(ctx); err != nil {
			return fmt.Errorf("ensure journal stream: %w", err)
		}
		journal, natsClient = j, c
	}

	sessionStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}

	hasher, err := security.NewHasher(cfg.PasswordHasher)
	if err != nil {
		return err
	}
	tokens := security.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiration)

	gateway := newGateway(cfg, log)

	var messageOpts []service.MessageOption
	if cfg.Storage.Endpoint != "" {
		store, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn("image archive unavailable", zap.Error(err))
		} else {
			messageOpts = append(messageOpts, service.WithImageArchive(store))
		}
	}

	// Initialize services
	conversationSvc := service.NewConversationService(journal, log)
	userSvc := service.NewUserService(hasher, conversationSvc, journal, log)
	sessionSvc := service.NewSessionService(sessionStore, tokens, userSvc, conversationSvc, cfg.SessionTTL, log)
	messageSvc := service.NewMessageService(conversationSvc, userSvc, gateway, journal, service.MessageConfig{
		CompletionTimeout: cfg.CompletionTimeout,
		ImageModel:        cfg.ImageModel,
		ImageSize:         cfg.ImageSize,
	}, log, messageOpts...)
	usageSvc := service.NewUsageService(userSvc, conversationSvc, cfg.CostPerToken)

	if _, err := userSvc.SeedAdmin(ctx, cfg.AdminEmail, service.DefaultAdminName, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	scheduler := jobs.NewScheduler(sessionSvc, usageSvc, log)
	if err := scheduler.Start(cfg.SessionReapSchedule, cfg.UsageMetricsSchedule); err != nil {
		return err
	}

	router := handler.NewRouter(handler.Services{
		Users:         userSvc,
		Sessions:      sessionSvc,
		Conversations: conversationSvc,
		Messages:      messageSvc,
		Usage:         usageSvc,
		NATS:          natsClient,
	}, handler.RouterConfig{
		CORSOrigins:       cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		SignInRateLimit:   cfg.SignInRateLimit,
	}, log)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warn("background jobs did not stop in time", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	if cfg.SessionStore != "redis" {
		return session.NewMemoryStore(), nil
	}
	client, err := session.NewRedisClient(ctx, session.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	return session.NewRedisStore(client), nil
}

// newGateway picks the configured provider and puts the echo responder
// behind it. With no usable key the echo responder serves alone.
func newGateway(cfg *config.Config, log *logger.Logger) llm.Gateway {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}

	order := []llm.Provider{llm.Provider(cfg.DefaultLLM), llm.ProviderOpenAI, llm.ProviderAnthropic}
	for _, p := range order {
		key := keys[p]
		if key == "" {
			continue
		}
		primary, err := llm.NewClient(p, key)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(p)), zap.Error(err))
			continue
		}
		log.Info("completion provider configured", zap.String("provider", primary.Name()))
		fallback := llm.NewEchoClient(primary.Models()...).WithNotice(llm.NoticeUnavailable)
		return llm.NewFallbackClient(primary, fallback, log)
	}

	log.Warn("no completion provider configured, replies come from the echo responder")
	return llm.NewEchoClient()
}
