// Webmata API — хост движка автоматизации.
//
// Процесс держит реестр браузерных сессий, оркестратор задач и hub
// WebSocket-соединений редактора, отдаёт HTTP API, /healthz и /metrics.
// События выполнения уходят в hub и, если задан RABBITMQ_URL, в шину.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Webmata/internal/api"
	"github.com/shaiso/Webmata/internal/browser"
	"github.com/shaiso/Webmata/internal/config"
	"github.com/shaiso/Webmata/internal/editor"
	"github.com/shaiso/Webmata/internal/executor"
	"github.com/shaiso/Webmata/internal/mq"
	"github.com/shaiso/Webmata/internal/orchestrator"
	"github.com/shaiso/Webmata/internal/realtime"
	"github.com/shaiso/Webmata/internal/repo"
	"github.com/shaiso/Webmata/internal/scheduler"
	"github.com/shaiso/Webmata/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting webmata-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// База данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if cfg.MigrateOnStart {
		if err := repo.Migrate(pool, logger); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
	}

	taskRepo := repo.NewTaskRepo(pool)
	stepRepo := repo.NewStepRepo(pool)
	logRepo := repo.NewLogRepo(pool)
	sessionRepo := repo.NewSessionRepo(pool)
	editorRepo := repo.NewEditorRepo(pool)

	// Сессии прошлого процесса уже не существуют
	if n, err := sessionRepo.DeactivateAll(ctx); err != nil {
		logger.Warn("failed to deactivate stale browser sessions", "error", err)
	} else if n > 0 {
		logger.Info("stale browser sessions deactivated", "count", n)
	}

	// Браузеры
	engine := browser.NewPlaywrightEngine(browser.PlaywrightConfig{
		Install: cfg.Browser.PlaywrightInstall,
		Logger:  logger,
	})

	registry := browser.NewRegistry(browser.Config{
		Engine:         engine,
		Store:          sessionRepo,
		ControlURLBase: cfg.Browser.PublicWSURL,
		Defaults:       cfg.BrowserDefaults(),
		Logger:         logger,
	})

	exec := executor.New(executor.Config{
		Sessions: registry,
		Logs:     logRepo,
		Logger:   logger,
	})

	// События: hub редактора и, если настроена, шина
	hub := realtime.NewHub(realtime.Config{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	sinks := orchestrator.Fanout{hub}

	var mqConn *mq.Connection
	if cfg.RabbitMQURL != "" {
		mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, events stay in-process", "error", err)
		} else {
			if err := mq.DeclareTopology(ctx, mqConn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			sinks = append(sinks, mq.NewEventSink(mq.NewPublisher(mqConn, logger), logger))
			logger.Info("RabbitMQ connected")
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Tasks:         taskRepo,
		Steps:         stepRepo,
		Sessions:      registry,
		Runner:        exec,
		Logs:          logRepo,
		Events:        sinks,
		Policy:        orchestrator.CompletionPolicy{MinSuccessRatio: cfg.CompletionMinSuccessRatio},
		MaxConcurrent: cfg.OrchestratorMaxConcurrent(),
		TaskTimeout:   cfg.TaskTimeout,
		PreviewDelay:  cfg.OrchestratorPreviewDelay(),
		Logger:        logger,
	})
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	editorSvc := editor.New(editor.Config{
		Store:      editorRepo,
		Steps:      stepRepo,
		Browser:    registry,
		Notifier:   hub,
		SessionTTL: cfg.EditorSessionTTL,
		Logger:     logger,
	})

	// Обслуживание: простаивающие сессии, старые записи
	janitor := scheduler.New(scheduler.Config{
		Spec:            cfg.CleanupCron,
		Sessions:        registry,
		Editor:          editorRepo,
		Executions:      orch,
		SessionIdle:     cfg.SessionIdleTimeout,
		EditorRetention: cfg.EditorRetention,
		RecordRetention: cfg.RecordRetention,
		Logger:          logger,
	})
	go func() {
		if err := janitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("janitor stopped", "error", err)
		}
	}()

	handler := api.NewHandler(api.Config{
		TaskRepo:       taskRepo,
		StepRepo:       stepRepo,
		LogRepo:        logRepo,
		Executions:     orch,
		Browsers:       registry,
		Editor:         editorSvc,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	orch.Stop()
	hub.Close()
	if err := registry.CloseAll(); err != nil {
		logger.Warn("failed to close browser sessions", "error", err)
	}
	if mqConn != nil {
		mqConn.Close()
	}

	logger.Info("stopped")
}
