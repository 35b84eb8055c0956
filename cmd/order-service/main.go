package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/repository"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/service"
	orderhttp "github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/order/transport/http"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/outbox"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/config"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/db"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/kafka"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "order-service")
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(config.LoggerConfig{
		Level: cfg.LogLevel,
		Env:   cfg.Env,
	})
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}
	defer pool.Close()

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			mylogger.Error(ctx, logger, "Error closing producer", zap.Error(err))
		}
	}()

	eventStore := repository.NewEventStore(pool, logger)
	outboxRepo := repository.NewOutboxRepository(pool, logger)
	orderService := service.NewOrderService(pool, logger, eventStore, outboxRepo)
	orderHandler := orderhttp.NewOrderHandler(orderService, logger)

	relay := outbox.NewRelay(pool, outboxRepo, kafkaProducer, logger, cfg.Outbox.BatchSize, cfg.Outbox.Interval)
	go relay.Start(ctx)

	metricsServer := &http.Server{
		Addr:    cfg.Metrics.Port,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mylogger.Error(ctx, logger, "Metrics server stopped", zap.Error(err))
		}
	}()

	app := orderhttp.NewRouter(orderHandler)

	go func() {
		mylogger.Info(ctx, logger, "Order service listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("error serving http: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, exit := context.WithTimeout(context.Background(), time.Second*5)
	defer exit()

	mylogger.Info(shutdownCtx, logger, "Shutting down order service")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down http server", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down metrics server", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	} else {
		mylogger.Info(shutdownCtx, logger, "Telemetry shut down")
	}
}
