package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/bet-settlement/internal/settlement/provider"
	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

var (
	// ErrCycleInProgress indica que outro ciclo já está rodando; o gatilho vira no-op
	ErrCycleInProgress = errors.New("settlement cycle already in progress")
	// ErrLockHeld é devolvido pelo Locker quando outro processo detém o lock
	ErrLockHeld = errors.New("settlement lock held by another process")
	// ErrAlreadySettled vem do Store quando a aposta já foi liquidada por outro escritor
	ErrAlreadySettled = errors.New("wager already settled")
)

// Origem do ciclo
const (
	TriggerTimer  = "timer"
	TriggerManual = "manual"
)

// LegUpdate grava o resultado de uma leg. SettledAt fica nil em needs_review.
type LegUpdate struct {
	LegID     string
	Outcome   Outcome
	ScoreHome *int
	ScoreAway *int
	CheckedAt time.Time
	SettledAt *time.Time
}

// WagerSettlement grava a decisão do rollup na aposta
type WagerSettlement struct {
	WagerID         string
	Result          Result
	ActualReturn    decimal.Decimal
	SettlementState SettlementState
	SettledAt       time.Time
}

// Store é a persistência que o ciclo consome. Todas as escritas são por linha.
type Store interface {
	// ListPendingLegs: legs pending, com provider_event_id, de apostas não deletadas,
	// event_time ascendente, no máximo limit
	ListPendingLegs(ctx context.Context, limit int) ([]Leg, error)
	UpdateLegOutcome(ctx context.Context, u LegUpdate) error
	// ListSettleableWagers: não deletadas, status != settled, com pelo menos uma leg (legs carregadas)
	ListSettleableWagers(ctx context.Context) ([]Wager, error)
	// SettleWager devolve ErrAlreadySettled se a linha já não estiver em aberto
	SettleWager(ctx context.Context, s WagerSettlement) error
	AppendAudit(ctx context.Context, rec AuditRecord) error
}

// Notifier recebe as apostas liquidadas; falha aqui nunca desfaz a liquidação
type Notifier interface {
	WagerSettled(ctx context.Context, e events.WagerSettled) error
}

// Locker é a exclusão entre processos; release deve ser idempotente
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Hooks são callbacks de métricas, ligados ao Prometheus no main
type Hooks struct {
	OnCycle         func(Summary)
	OnLegSettled    func(Outcome)
	OnWagerSettled  func(SettlementState)
	OnProviderError func()
	OnStoreError    func(stage string)
}

// Options ajusta o Runner; zero values recebem defaults em NewRunner
type Options struct {
	BatchSize       int
	Workers         int
	ProviderTimeout time.Duration
	DefaultActor    string

	Notifier Notifier
	Locker   Locker
	Hooks    Hooks
	Now      func() time.Time
}

// Summary é o retorno de um ciclo, igual para timer e gatilho manual
type Summary struct {
	CycleID        string        `json:"cycle_id"`
	Provider       string        `json:"provider"`
	Trigger        string        `json:"trigger"`
	Actor          string        `json:"actor"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
	ScannedLegs    int           `json:"scanned_legs"`
	FixtureGroups  int           `json:"fixture_groups"`
	UpdatedLegs    int           `json:"updated_legs"`
	SettledWagers  int           `json:"settled_wagers"`
	ReviewWagers   int           `json:"review_wagers"`
	ProviderErrors int           `json:"provider_errors"`
	StoreErrors    int           `json:"store_errors"`
	Skipped        bool          `json:"skipped,omitempty"`
	Aborted        bool          `json:"aborted,omitempty"`
}

// Runner executa ciclos de reconciliação; no máximo um em voo por processo
type Runner struct {
	store    Store
	provider provider.Provider
	log      *zap.Logger
	opts     Options

	running atomic.Bool
}

func NewRunner(store Store, prov provider.Provider, log *zap.Logger, opts Options) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 300
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.DefaultActor == "" {
		opts.DefaultActor = "system:settlement"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{store: store, provider: prov, log: log, opts: opts}
}

// Provider devolve o provider configurado
func (r *Runner) Provider() provider.Provider { return r.provider }

// fixtureGroup são as legs que apontam para a mesma partida real
type fixtureGroup struct {
	key     string
	eventID string
	legs    []Leg
}

type groupResult struct {
	updated        int
	providerErrors int
	storeErrors    int
}

// RunCycle executa select -> group -> resolve -> rollup.
// Erros de provider e de persistência viram contadores; o único erro devolvido
// é ErrCycleInProgress (ou falha ao obter o lock), com Summary.Skipped=true.
func (r *Runner) RunCycle(ctx context.Context, trigger, actor string) (sum Summary, err error) {
	if actor == "" {
		actor = r.opts.DefaultActor
	}
	start := r.opts.Now()
	sum = Summary{
		CycleID:   uuid.NewString(),
		Provider:  r.provider.Name(),
		Trigger:   trigger,
		Actor:     actor,
		StartedAt: start,
	}

	if !r.running.CompareAndSwap(false, true) {
		sum.Skipped = true
		r.log.Info("settlement cycle skipped", zap.String("trigger", trigger), zap.String("reason", "in_progress"))
		return sum, ErrCycleInProgress
	}
	defer r.running.Store(false)

	if r.opts.Locker != nil {
		release, lerr := r.opts.Locker.Acquire(ctx)
		if lerr != nil {
			sum.Skipped = true
			if errors.Is(lerr, ErrLockHeld) {
				r.log.Info("settlement cycle skipped", zap.String("trigger", trigger), zap.String("reason", "lock_held"))
				return sum, ErrCycleInProgress
			}
			r.log.Warn("settlement lock unavailable", zap.Error(lerr))
			return sum, fmt.Errorf("acquire settlement lock: %w", lerr)
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				r.log.Warn("settlement lock release", zap.Error(rerr))
			}
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			sum.Aborted = true
			r.log.Error("settlement cycle panic", zap.String("cycle_id", sum.CycleID), zap.Any("panic", p), zap.Stack("stack"))
		}
		sum.Duration = r.opts.Now().Sub(start)
		if r.opts.Hooks.OnCycle != nil {
			r.opts.Hooks.OnCycle(sum)
		}
		r.log.Info("settlement cycle finished",
			zap.String("cycle_id", sum.CycleID),
			zap.String("provider", sum.Provider),
			zap.String("trigger", sum.Trigger),
			zap.Int("scanned_legs", sum.ScannedLegs),
			zap.Int("updated_legs", sum.UpdatedLegs),
			zap.Int("settled_wagers", sum.SettledWagers),
			zap.Int("review_wagers", sum.ReviewWagers),
			zap.Int("provider_errors", sum.ProviderErrors),
			zap.Int("store_errors", sum.StoreErrors),
			zap.Duration("duration", sum.Duration),
		)
	}()

	// 1) select
	legs, lerr := r.store.ListPendingLegs(ctx, r.opts.BatchSize)
	if lerr != nil {
		r.storeError("list_legs", lerr)
		sum.StoreErrors++
	}
	sum.ScannedLegs = len(legs)

	// 2) group
	groups := r.groupLegs(legs)
	sum.FixtureGroups = len(groups)

	// 3) resolve: grupos são independentes, roda em paralelo limitado
	results := make([]groupResult, len(groups))
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					results[i].providerErrors++
					r.log.Error("settlement group panic", zap.String("event_key", grp.key), zap.Any("panic", p))
				}
			}()
			results[i] = r.resolveGroup(ctx, sum.CycleID, grp)
			return nil
		})
	}
	_ = g.Wait()
	for _, res := range results {
		sum.UpdatedLegs += res.updated
		sum.ProviderErrors += res.providerErrors
		sum.StoreErrors += res.storeErrors
	}

	// 4) rollup: só depois de todas as escritas de legs
	r.rollupWagers(ctx, actor, &sum)

	return sum, nil
}

// groupLegs agrupa por provider:event_id preservando a ordem de event_time
func (r *Runner) groupLegs(legs []Leg) []*fixtureGroup {
	var groups []*fixtureGroup
	index := make(map[string]*fixtureGroup)
	for _, leg := range legs {
		if leg.ProviderEventID == "" {
			continue
		}
		prov := leg.Provider
		if prov == "" {
			prov = r.provider.Name()
		}
		key := prov + ":" + leg.ProviderEventID
		grp, ok := index[key]
		if !ok {
			grp = &fixtureGroup{key: key, eventID: leg.ProviderEventID}
			index[key] = grp
			groups = append(groups, grp)
		}
		grp.legs = append(grp.legs, leg)
	}
	return groups
}

// resolveGroup consulta o provider uma vez e grava as legs decididas.
// Falha do provider deixa o grupo inteiro pending para o próximo ciclo.
func (r *Runner) resolveGroup(ctx context.Context, cycleID string, grp *fixtureGroup) (res groupResult) {
	pctx, cancel := context.WithTimeout(ctx, r.opts.ProviderTimeout)
	fx, err := r.provider.GetFixtureByEventID(pctx, grp.eventID)
	cancel()
	if err != nil {
		res.providerErrors++
		if r.opts.Hooks.OnProviderError != nil {
			r.opts.Hooks.OnProviderError()
		}
		r.log.Warn("settlement provider error",
			zap.String("cycle_id", cycleID),
			zap.String("provider", r.provider.Name()),
			zap.String("event_key", grp.key),
			zap.Error(err),
		)
		return res
	}
	if fx == nil || fx.Status != provider.StatusFinished {
		return res
	}

	// escrita iniciada vai até o fim, mesmo com ctx cancelado
	wctx := context.WithoutCancel(ctx)
	now := r.opts.Now()
	for _, leg := range grp.legs {
		outcome := EvaluateLeg(leg, *fx)
		if outcome == OutcomePending {
			continue
		}
		upd := LegUpdate{
			LegID:     leg.ID,
			Outcome:   outcome,
			ScoreHome: fx.ScoreHome,
			ScoreAway: fx.ScoreAway,
			CheckedAt: now,
		}
		if outcome != OutcomeNeedsReview {
			settledAt := now
			upd.SettledAt = &settledAt
		}
		if err := r.store.UpdateLegOutcome(wctx, upd); err != nil {
			res.storeErrors++
			r.storeError("update_leg", err, zap.String("leg_id", leg.ID))
			continue
		}
		res.updated++
		if r.opts.Hooks.OnLegSettled != nil {
			r.opts.Hooks.OnLegSettled(outcome)
		}
		r.log.Debug("leg settled",
			zap.String("cycle_id", cycleID),
			zap.String("leg_id", leg.ID),
			zap.String("wager_id", leg.WagerID),
			zap.String("outcome", string(outcome)),
		)
	}
	return res
}

// rollupWagers reavalia toda aposta em aberto, mudou ou não neste ciclo
func (r *Runner) rollupWagers(ctx context.Context, actor string, sum *Summary) {
	wagers, err := r.store.ListSettleableWagers(ctx)
	if err != nil {
		sum.StoreErrors++
		r.storeError("list_wagers", err)
		return
	}

	wctx := context.WithoutCancel(ctx)
	for _, w := range wagers {
		if len(w.Legs) == 0 {
			// contrato violado a montante (validação de entrada)
			r.log.Error("wager without legs reached rollup", zap.String("wager_id", w.ID))
			continue
		}

		roll := Rollup(LegResults(w.Legs), w.Stake)
		if !roll.Done {
			continue
		}

		settledAt := r.opts.Now()
		if err := r.store.SettleWager(wctx, WagerSettlement{
			WagerID:         w.ID,
			Result:          roll.Result,
			ActualReturn:    roll.Payout,
			SettlementState: roll.SettlementState,
			SettledAt:       settledAt,
		}); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				r.log.Debug("wager settled elsewhere", zap.String("wager_id", w.ID))
				continue
			}
			sum.StoreErrors++
			r.storeError("settle_wager", err, zap.String("wager_id", w.ID))
			continue
		}

		sum.SettledWagers++
		if roll.SettlementState == StateNeedsReview {
			sum.ReviewWagers++
		}
		if r.opts.Hooks.OnWagerSettled != nil {
			r.opts.Hooks.OnWagerSettled(roll.SettlementState)
		}

		if err := r.store.AppendAudit(wctx, AuditRecord{
			ID:        uuid.NewString(),
			WagerID:   w.ID,
			Action:    AuditActionAutoSettled,
			Actor:     actor,
			Changes:   rollupChanges(roll),
			CreatedAt: settledAt,
		}); err != nil {
			sum.StoreErrors++
			r.storeError("append_audit", err, zap.String("wager_id", w.ID))
		}

		if r.opts.Notifier != nil {
			evt := events.WagerSettled{
				WagerID:         w.ID,
				CycleID:         sum.CycleID,
				Result:          string(roll.Result),
				ActualReturn:    roll.Payout.StringFixed(2),
				SettlementState: string(roll.SettlementState),
				Actor:           actor,
				Ts:              settledAt,
			}
			if err := r.opts.Notifier.WagerSettled(wctx, evt); err != nil {
				r.log.Warn("settlement notify failed", zap.String("wager_id", w.ID), zap.Error(err))
			}
		}
	}
}

func (r *Runner) storeError(stage string, err error, fields ...zap.Field) {
	if r.opts.Hooks.OnStoreError != nil {
		r.opts.Hooks.OnStoreError(stage)
	}
	r.log.Error("settlement store error", append(fields, zap.String("stage", stage), zap.Error(err))...)
}

// rollupChanges serializa o diff gravado no audit log
func rollupChanges(roll RollupResult) []byte {
	b, _ := json.Marshal(map[string]any{
		"result":           roll.Result,
		"actual_return":    json.Number(roll.Payout.StringFixed(2)),
		"settlement_state": roll.SettlementState,
	})
	return b
}
