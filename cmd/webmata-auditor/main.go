// Webmata Auditor — читает события движка из шины.
//
// Auditor слушает очередь events.audit, пишет каждое событие в лог и
// считает их в webmata_events_consumed_total. Отдаёт /healthz и /metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Webmata/internal/config"
	"github.com/shaiso/Webmata/internal/mq"
	"github.com/shaiso/Webmata/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting webmata-auditor")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.RabbitMQURL == "" {
		logger.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := mq.DeclareTopology(ctx, conn); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:    mq.QueueEventsAudit,
		Prefetch: 10,
		Handler: func(ctx context.Context, d *mq.Delivery) error {
			event, err := d.Event()
			if err != nil {
				return err
			}
			telemetry.EventsConsumedTotal.WithLabelValues(string(event.Type)).Inc()
			logger.Info("event",
				"type", event.Type,
				"execution_id", event.ExecutionID,
				"task_id", event.TaskID,
				"message_id", d.Message.ID,
			)
			return nil
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("AUDITOR_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
	}
	logger.Info("webmata-auditor stopped")
}
