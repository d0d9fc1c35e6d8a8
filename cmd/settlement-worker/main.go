package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/internal/settlement"
	httpapi "github.com/radieske/bet-settlement/internal/settlement/http"
	"github.com/radieske/bet-settlement/internal/settlement/lock"
	"github.com/radieske/bet-settlement/internal/settlement/notify"
	"github.com/radieske/bet-settlement/internal/settlement/provider"
	"github.com/radieske/bet-settlement/internal/settlement/repo"
	"github.com/radieske/bet-settlement/internal/shared/cache"
	"github.com/radieske/bet-settlement/internal/shared/config"
	"github.com/radieske/bet-settlement/internal/shared/db"
	"github.com/radieske/bet-settlement/internal/shared/kafka"
	"github.com/radieske/bet-settlement/internal/shared/logger"
	"github.com/radieske/bet-settlement/internal/shared/metrics"
	"github.com/radieske/bet-settlement/internal/wager"
)

func main() {
	cfg := config.LoadService("settlement-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	// Postgres: legs, apostas e audit log
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: lock do ciclo entre réplicas e broadcast das liquidações
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: evento wager_settled por aposta liquidada
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWagerSettled)
	defer settledWriter.Close()

	// Provider escolhido uma vez no boot
	prov, err := provider.New(cfg)
	if err != nil {
		log.Fatal("settlement provider", zap.Error(err))
	}

	// Métricas Prometheus do ciclo
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_cycles_total", Help: "ciclos de liquidação"}, []string{"trigger", "outcome"})
	legsUpdated := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_legs_updated_total", Help: "legs decididas"}, []string{"outcome"})
	wagersSettled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_wagers_settled_total", Help: "apostas liquidadas"}, []string{"state"})
	providerErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_provider_errors_total", Help: "falhas do provider por grupo"})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_store_errors_total", Help: "falhas de persistência por estágio"}, []string{"stage"})
	cycleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_cycle_duration_seconds",
		Help:    "duração do ciclo",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
	prometheus.MustRegister(cycles, legsUpdated, wagersSettled, providerErrors, storeErrors, cycleDuration)

	store := repo.NewPostgres(pg)
	runner := settlement.NewRunner(store, prov, log, settlement.Options{
		BatchSize:       cfg.SettlementBatchSize,
		Workers:         cfg.SettlementWorkers,
		ProviderTimeout: cfg.ProviderTimeout,
		DefaultActor:    cfg.SettlementActor,
		Locker:          lock.NewRedisLock(rdb, lock.DefaultKey, cfg.LockTTL),
		Notifier: notify.Fanout{
			notify.NewKafkaPublisher(settledWriter, log),
			notify.NewRedisBroadcaster(rdb, cfg.RedisSettlementChannel),
		},
		Hooks: settlement.Hooks{
			OnCycle: func(s settlement.Summary) {
				outcome := "ok"
				switch {
				case s.Aborted:
					outcome = "aborted"
				case s.ProviderErrors > 0 || s.StoreErrors > 0:
					outcome = "partial"
				}
				cycles.WithLabelValues(s.Trigger, outcome).Inc()
				cycleDuration.Observe(s.Duration.Seconds())
			},
			OnLegSettled:    func(o settlement.Outcome) { legsUpdated.WithLabelValues(string(o)).Inc() },
			OnWagerSettled:  func(st settlement.SettlementState) { wagersSettled.WithLabelValues(string(st)).Inc() },
			OnProviderError: func() { providerErrors.Inc() },
			OnStoreError:    func(stage string) { storeErrors.WithLabelValues(stage).Inc() },
		},
	})

	// Rotas admin no mesmo servidor de métricas
	api := &httpapi.API{Runner: skipCounter{runner, cycles}, Wagers: wager.NewService(store, log), Log: log}
	health := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	}
	srv := metrics.StartMetricsServer(cfg.MetricsPort, health, metrics.Route{Pattern: "/v1/", Handler: api.Router()})
	log.Info("metrics/health/admin listening", zap.String("port", cfg.MetricsPort))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var sched *settlement.Scheduler
	if cfg.PollingEnabled() {
		sched = settlement.NewScheduler(skipCounter{runner, cycles}, cfg.SettlementPoll, cfg.SettlementActor, log)
		if err := sched.Start(ctx); err != nil {
			log.Fatal("settlement scheduler", zap.Error(err))
		}
	} else {
		log.Info("settlement timer disabled",
			zap.String("provider", prov.Name()),
			zap.Duration("poll", cfg.SettlementPoll),
		)
	}

	log.Info("settlement-worker started", zap.String("provider", prov.Name()))
	<-ctx.Done()

	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("settlement-worker stopped")
}

// skipCounter conta os gatilhos barrados pela guarda, que não passam pelo OnCycle
type skipCounter struct {
	settlement.CycleRunner
	cycles *prometheus.CounterVec
}

func (s skipCounter) RunCycle(ctx context.Context, trigger, actor string) (settlement.Summary, error) {
	sum, err := s.CycleRunner.RunCycle(ctx, trigger, actor)
	if err != nil && sum.Skipped {
		outcome := "lock_error"
		if errors.Is(err, settlement.ErrCycleInProgress) {
			outcome = "skipped"
		}
		s.cycles.WithLabelValues(trigger, outcome).Inc()
	}
	return sum, err
}
