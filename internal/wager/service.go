package wager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

// Repository é a persistência de apostas usada fora do ciclo de liquidação
type Repository interface {
	CreateWager(ctx context.Context, w *settlement.Wager, audit settlement.AuditRecord) error
	GetWager(ctx context.Context, id string) (*settlement.Wager, error)
	UpdateStatus(ctx context.Context, id string, status settlement.Status, audit settlement.AuditRecord) error
	SoftDelete(ctx context.Context, id string, audit settlement.AuditRecord) error
	PatchWager(ctx context.Context, id string, patch settlement.WagerPatch, audit settlement.AuditRecord) error
	ListWagers(ctx context.Context, f settlement.WagerFilter) ([]settlement.Wager, int, error)
}

// StatusWriter é o recorte do Repository que o refresh precisa
type StatusWriter interface {
	UpdateStatus(ctx context.Context, id string, status settlement.Status, audit settlement.AuditRecord) error
}

// DefaultActor assina submissões que chegam sem submitted_by
const DefaultActor = "system:intake"

// Service junta validação, persistência e auditoria de apostas
type Service struct {
	Repo Repository
	Log  *zap.Logger
	Now  func() time.Time
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{Repo: repo, Log: log, Now: time.Now}
}

// Submit valida e grava a aposta com o registro "created"
func (s *Service) Submit(ctx context.Context, e events.WagerSubmitted) (*settlement.Wager, error) {
	now := s.Now()
	w, err := Build(e, now)
	if err != nil {
		return nil, err
	}

	actor := e.SubmittedBy
	if actor == "" {
		actor = DefaultActor
		w.SubmittedBy = actor
	}

	changes, _ := json.Marshal(map[string]any{"created": e})
	rec := settlement.AuditRecord{
		ID:        uuid.NewString(),
		Action:    settlement.AuditActionCreated,
		Actor:     actor,
		Changes:   changes,
		CreatedAt: now,
	}
	if err := s.Repo.CreateWager(ctx, w, rec); err != nil {
		return nil, err
	}

	s.Log.Info("wager created",
		zap.String("wager_id", w.ID),
		zap.String("kind", string(w.Kind)),
		zap.Int("legs", len(w.Legs)),
		zap.String("actor", actor),
	)
	return w, nil
}

// Get lê a aposta e aplica o refresh de status antes de devolver
func (s *Service) Get(ctx context.Context, id, actor string) (*settlement.Wager, error) {
	w, err := s.Repo.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, w, actor)
}

// refresh aplica RefreshStatus; se o runner liquidou a aposta no meio, relê o estado atual
func (s *Service) refresh(ctx context.Context, w *settlement.Wager, actor string) (*settlement.Wager, error) {
	_, err := RefreshStatus(ctx, s.Repo, w, actor, s.Now())
	switch {
	case err == nil:
		return w, nil
	case errors.Is(err, settlement.ErrAlreadySettled):
		s.Log.Debug("wager settled during status refresh", zap.String("wager_id", w.ID))
		return s.Repo.GetWager(ctx, w.ID)
	default:
		return nil, err
	}
}

// Page é uma página da listagem
type Page struct {
	Wagers []settlement.Wager
	Total  int
	Page   int
	Pages  int
}

// List devolve uma página de apostas com o status recalculado de cada uma
func (s *Service) List(ctx context.Context, f settlement.WagerFilter, actor string) (*Page, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	rows, total, err := s.Repo.ListWagers(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &Page{
		Wagers: make([]settlement.Wager, 0, len(rows)),
		Total:  total,
		Page:   f.Offset/f.Limit + 1,
		Pages:  max(1, (total+f.Limit-1)/f.Limit),
	}
	for i := range rows {
		w, err := s.refresh(ctx, &rows[i], actor)
		if err != nil {
			return nil, err
		}
		out.Wagers = append(out.Wagers, *w)
	}
	return out, nil
}

// Patch aplica a edição parcial e grava o registro "updated" com os campos alterados
func (s *Service) Patch(ctx context.Context, id, actor string, req PatchRequest) (*settlement.Wager, error) {
	patch, changes, err := BuildPatch(req)
	if err != nil {
		return nil, err
	}

	cur, err := s.Repo.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Kind != nil {
		if err := checkLegCount(*patch.Kind, len(cur.Legs)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidWager, err)
		}
	}

	diff, _ := json.Marshal(changes)
	rec := settlement.AuditRecord{
		ID:        uuid.NewString(),
		Action:    settlement.AuditActionUpdated,
		Actor:     actor,
		Changes:   diff,
		CreatedAt: s.Now(),
	}
	if err := s.Repo.PatchWager(ctx, id, patch, rec); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	s.Log.Info("wager updated", zap.String("wager_id", id), zap.Strings("fields", fields), zap.String("actor", actor))

	return s.Repo.GetWager(ctx, id)
}

// Delete faz soft delete e audita
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	rec := settlement.AuditRecord{
		ID:        uuid.NewString(),
		Action:    settlement.AuditActionDeleted,
		Actor:     actor,
		Changes:   []byte(`{"deleted":true}`),
		CreatedAt: s.Now(),
	}
	if err := s.Repo.SoftDelete(ctx, id, rec); err != nil {
		return err
	}
	s.Log.Info("wager deleted", zap.String("wager_id", id), zap.String("actor", actor))
	return nil
}

// RefreshStatus recalcula o status exibido e grava só quando mudou.
// settled nunca é tocado; w é atualizado em memória depois da escrita.
func RefreshStatus(ctx context.Context, repo StatusWriter, w *settlement.Wager, actor string, now time.Time) (bool, error) {
	if w.Status == settlement.StatusSettled {
		return false, nil
	}
	next := settlement.Classify(w.MatchTime, w.Status, now)
	if next == w.Status {
		return false, nil
	}

	changes, _ := json.Marshal(map[string]string{"from": string(w.Status), "to": string(next)})
	rec := settlement.AuditRecord{
		ID:        uuid.NewString(),
		Action:    settlement.AuditActionStatusRefresh,
		Actor:     actor,
		Changes:   changes,
		CreatedAt: now,
	}
	if err := repo.UpdateStatus(ctx, w.ID, next, rec); err != nil {
		return false, err
	}
	w.Status = next
	return true, nil
}
