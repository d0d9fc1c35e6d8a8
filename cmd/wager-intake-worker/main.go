package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/internal/settlement/repo"
	"github.com/radieske/bet-settlement/internal/shared/config"
	"github.com/radieske/bet-settlement/internal/shared/db"
	"github.com/radieske/bet-settlement/internal/shared/kafka"
	"github.com/radieske/bet-settlement/internal/shared/logger"
	"github.com/radieske/bet-settlement/internal/shared/metrics"
	"github.com/radieske/bet-settlement/internal/wager"
)

func main() {
	cfg := config.LoadService("wager-intake-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: apostas e audit log
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	store := repo.NewPostgres(pg)

	// Consumer group wager-intake + DLQ para payloads rejeitados
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicWagerSubmitted, "wager-intake")
	defer reader.Close()
	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSubmittedDLQ)
	defer dlq.Close()

	// Métricas Prometheus do intake
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_intake_messages_consumed_total", Help: "mensagens consumidas"})
	created := prometheus.NewCounter(prometheus.CounterOpts{Name: "wager_intake_created_total", Help: "apostas gravadas"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wager_intake_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, created, errorsBy)

	proc := &wager.Processor{
		Log:        log,
		Reader:     reader,
		Service:    wager.NewService(store, log),
		DLQ:        dlq,
		Retries:    3,
		Backoff:    300 * time.Millisecond,
		OnConsumed: func() { consumed.Inc() },
		OnCreated:  func() { created.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	srv := metrics.StartMetricsServer(cfg.MetricsPort, store.Ping)
	log.Info("metrics/health listening", zap.String("port", cfg.MetricsPort))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("wager-intake-worker started", zap.String("topic", cfg.TopicWagerSubmitted))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("wager-intake-worker stopped")
}
