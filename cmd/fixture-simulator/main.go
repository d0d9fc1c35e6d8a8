package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	simulator "github.com/radieske/bet-settlement/internal/fixture-simulator"
	"github.com/radieske/bet-settlement/internal/shared/config"
	"github.com/radieske/bet-settlement/internal/shared/logger"
	"github.com/radieske/bet-settlement/internal/shared/metrics"
)

// Métricas Prometheus do simulador
var fixtureRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "fixture_simulator_requests_total",
	Help: "Consultas a /fixtures por resultado (status curto, not_found, falha injetada)",
}, []string{"result"})

func main() {
	cfg := config.LoadService("fixture-simulator")
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(fixtureRequests)

	// Catálogo ancorado na subida do processo: as partidas avançam com o relógio
	start := time.Now()
	sim := &simulator.Server{
		Catalog:   simulator.NewCatalog(start, simulator.DefaultCatalog),
		Log:       log,
		Now:       time.Now,
		FailRate:  cfg.SimulatorFailRate,
		Rand:      rand.Float64,
		OnRequest: func(result string) { fixtureRequests.WithLabelValues(result).Inc() },
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("fixture simulator listening", zap.String("addr", srv.Addr), zap.Float64("fail_rate", cfg.SimulatorFailRate))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
	log.Info("fixture simulator stopped")
}
