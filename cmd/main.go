package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"expertpay/internal/clients"
	"expertpay/internal/config"
	"expertpay/internal/events"
	"expertpay/internal/processor"
	"expertpay/internal/repository"
	"expertpay/internal/service"
	"expertpay/internal/transport/auth"
	"expertpay/internal/transport/rest"
	"expertpay/internal/transport/websocket"
	"expertpay/pkg/database/postgres"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	db := mustInitPostgres(cfg.Postgres, logger)
	defer postgres.Close(db)

	redisClient := mustInitRedis(cfg.Redis, logger)
	defer redisClient.Close()

	storageClient, err := clients.NewLocalStorage(cfg.ReportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init error")
	}

	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	queue, err := events.NewQueue(watermill.NewStdLogger(false, false))
	if err != nil {
		logger.Fatal().Err(err).Msg("queue init error")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	expertRepo := repository.NewExpertRepository(db)
	tokenRepo := repository.NewAPITokenRepository(db)

	proc := processor.NewHTTPClient(processor.Config{
		BaseURL:    cfg.Processor.BaseURL,
		APIKey:     cfg.Processor.APIKey,
		Timeout:    cfg.Processor.Timeout,
		MaxRetries: uint64(cfg.Processor.MaxRetries),
	}, logger)

	ledgerSvc := service.NewLedgerService(paymentRepo, proc, wsClient, logger)
	cancellationSvc := service.NewCancellationService(ledgerSvc, expertRepo, logger)
	webhookSvc := service.NewWebhookService(paymentRepo, redisClient, queue.Publisher(), wsClient, cfg.Processor.WebhookSecret, logger)
	reportSvc := service.NewReportService(paymentRepo, redisClient, storageClient, wsClient, logger)

	queue.AddHandler("webhook-reconciler", service.WebhookTopic, webhookSvc.HandleMessage)
	go func() {
		if err := queue.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("event queue stopped")
		}
	}()

	tokenMiddleware := auth.TokenMiddleware(tokenRepo, logger)

	handler := rest.NewHandler(ledgerSvc, cancellationSvc, webhookSvc, reportSvc)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// public root router: webhook, health and generated files stay open
	// while the API routes sit behind token auth
	root := chi.NewRouter()

	root.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	root.Mount("/", handler.WebhookRouter())

	root.Get("/files/{file}", func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path := filepath.Join(storageClient.BaseDir, file)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		// prefer original filename in Content-Disposition (strip random prefix)
		orig := file
		if idx := strings.IndexByte(file, '_'); idx >= 0 {
			orig = file[idx+1:]
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orig))

		http.ServeFile(w, r, path)
	})

	// protected websocket endpoint for status/report notifications
	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.GetUserID(r.Context())
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		logger.Debug().Int64("user_id", userID).Msg("websocket connected")
		wsHub.HandleWebSocket(w, r, userID)
	})

	root.Mount("/api", router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      withCORS(root),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// delete generated report files once their download window passes
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := storageClient.CleanupOlderThan(30 * time.Minute); err != nil {
					logger.Warn().Err(err).Msg("storage cleanup error")
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// stop background services, then drain the queue
		cancel()
		if err := queue.Close(); err != nil {
			logger.Error().Err(err).Msg("queue close error")
		}

		postgres.Close(db)
		redisClient.Close()

		logger.Info().Msg("shutdown complete")
	}
}

func mustInitPostgres(cfg config.PostgresConfig, logger zerolog.Logger) *sql.DB {
	db, err := postgres.NewPostgresConnection(postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres init error")
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig, logger zerolog.Logger) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis init error")
	}
	return client
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Processor-Signature")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
