package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CycleRunner é o que o Scheduler e a rota admin disparam
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger, actor string) (Summary, error)
}

// Scheduler dispara ciclos em intervalo fixo. Pertence ao processo: main cria,
// main para. Sobreposição é barrada pelo próprio Runner.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	actor    string
	log      *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

func NewScheduler(runner CycleRunner, interval time.Duration, actor string, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{runner: runner, interval: interval, actor: actor, log: log}
}

// Start registra o job "@every <interval>" e sobe o cron
func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	if s.interval < time.Second {
		return fmt.Errorf("scheduler interval %s below 1s", s.interval)
	}

	ctx, cancel := context.WithCancel(parent)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.tick(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule settlement cycle: %w", err)
	}

	c.Start()
	s.cron, s.cancel, s.started = c, cancel, true
	s.log.Info("settlement scheduler started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.runner.RunCycle(ctx, TriggerTimer, s.actor); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			return
		}
		s.log.Error("settlement cycle error", zap.Error(err))
	}
}

// Stop para novos disparos e espera o ciclo em voo terminar
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel, started := s.cron, s.cancel, s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	<-c.Stop().Done()
	cancel()
	s.log.Info("settlement scheduler stopped")
}

// Cancel para novos disparos sem esperar; chamadas ao provider em voo recebem ctx cancelado
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	c, cancel, started := s.cron, s.cancel, s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}

	cancel()
	c.Stop()
	s.log.Info("settlement scheduler cancelled")
}

// Running indica se o cron está ativo
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
