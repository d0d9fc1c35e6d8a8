package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement/internal/settlement"
)

var ErrNotFound = errors.New("not found")

// Postgres implementa o Store do ciclo de liquidação e o CRUD de apostas
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const wagerColumns = `
	w.id, w.kind, w.teams, w.bet_type, w.odds, w.stake, w.currency, w.match_time,
	w.status, w.result, w.actual_return, w.settlement_state, w.settled_at,
	w.submitted_by, w.provider, w.provider_ref, w.notes, w.created_at, w.updated_at, w.deleted_at`

const legColumns = `
	l.id, l.wager_id, l.leg_order, l.teams, l.market_type, l.selection, l.line, l.odds,
	l.event_time, l.provider, l.provider_event_id, l.settlement, l.score_home, l.score_away,
	l.checked_at, l.settled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWager(s rowScanner) (settlement.Wager, error) {
	var (
		w                            settlement.Wager
		kind, status, state          string
		result, prov, provRef, notes sql.NullString
		payout                       decimal.NullDecimal
		settledAt, deletedAt         sql.NullTime
	)
	err := s.Scan(
		&w.ID, &kind, &w.Teams, &w.BetType, &w.Odds, &w.Stake, &w.Currency, &w.MatchTime,
		&status, &result, &payout, &state, &settledAt,
		&w.SubmittedBy, &prov, &provRef, &notes, &w.CreatedAt, &w.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return w, err
	}
	w.Kind = settlement.Kind(kind)
	w.Status = settlement.Status(status)
	w.SettlementState = settlement.SettlementState(state)
	if result.Valid {
		r := settlement.Result(result.String)
		w.Result = &r
	}
	if payout.Valid {
		p := payout.Decimal
		w.ActualReturn = &p
	}
	w.SettledAt = timePtr(settledAt)
	w.DeletedAt = timePtr(deletedAt)
	w.Provider = prov.String
	w.ProviderRef = provRef.String
	if notes.Valid {
		n := notes.String
		w.Notes = &n
	}
	return w, nil
}

func scanLeg(s rowScanner) (settlement.Leg, error) {
	var (
		l                settlement.Leg
		line             sql.NullFloat64
		prov, eventID    sql.NullString
		outcome          string
		home, away       sql.NullInt64
		checked, settled sql.NullTime
	)
	err := s.Scan(
		&l.ID, &l.WagerID, &l.Order, &l.Teams, &l.MarketType, &l.Selection, &line, &l.Odds,
		&l.EventTime, &prov, &eventID, &outcome, &home, &away,
		&checked, &settled,
	)
	if err != nil {
		return l, err
	}
	if line.Valid {
		v := line.Float64
		l.Line = &v
	}
	l.Provider = prov.String
	l.ProviderEventID = eventID.String
	l.Settlement = settlement.Outcome(outcome)
	l.ScoreHome = intPtr(home)
	l.ScoreAway = intPtr(away)
	l.CheckedAt = timePtr(checked)
	l.SettledAt = timePtr(settled)
	return l, nil
}

// ListPendingLegs devolve as legs ainda em aberto que têm como ser consultadas no provider
func (p *Postgres) ListPendingLegs(ctx context.Context, limit int) ([]settlement.Leg, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+legColumns+`
		FROM wager_legs l
		JOIN wagers w ON w.id = l.wager_id
		WHERE l.settlement = 'pending'
		  AND l.provider_event_id IS NOT NULL AND l.provider_event_id <> ''
		  AND w.deleted_at IS NULL
		ORDER BY l.event_time ASC, l.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending legs: %w", err)
	}
	defer rows.Close()

	var out []settlement.Leg
	for rows.Next() {
		l, err := scanLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLegOutcome grava o resultado; só toca linhas ainda pending
func (p *Postgres) UpdateLegOutcome(ctx context.Context, u settlement.LegUpdate) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE wager_legs
		SET settlement=$2, score_home=$3, score_away=$4, checked_at=$5, settled_at=$6
		WHERE id=$1 AND settlement='pending'`,
		u.LegID, string(u.Outcome), u.ScoreHome, u.ScoreAway, u.CheckedAt, u.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("update leg %s: %w", u.LegID, err)
	}
	return nil
}

// ListSettleableWagers carrega apostas em aberto com todas as suas legs
func (p *Postgres) ListSettleableWagers(ctx context.Context) ([]settlement.Wager, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		WHERE w.deleted_at IS NULL
		  AND w.status <> 'settled'
		  AND EXISTS (SELECT 1 FROM wager_legs l WHERE l.wager_id = w.id)
		ORDER BY w.match_time, w.id`)
	if err != nil {
		return nil, fmt.Errorf("query settleable wagers: %w", err)
	}
	defer rows.Close()

	var wagers []settlement.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wager: %w", err)
		}
		wagers = append(wagers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(wagers) == 0 {
		return nil, nil
	}

	ids := make([]string, len(wagers))
	for i, w := range wagers {
		ids[i] = w.ID
	}
	legs, err := p.legsFor(ctx, p.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range wagers {
		wagers[i].Legs = legs[wagers[i].ID]
	}
	return wagers, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (p *Postgres) legsFor(ctx context.Context, q querier, wagerIDs []string) (map[string][]settlement.Leg, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+legColumns+`
		FROM wager_legs l
		WHERE l.wager_id = ANY($1)
		ORDER BY l.wager_id, l.leg_order`, pq.Array(wagerIDs))
	if err != nil {
		return nil, fmt.Errorf("query legs: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]settlement.Leg, len(wagerIDs))
	for rows.Next() {
		l, err := scanLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leg: %w", err)
		}
		out[l.WagerID] = append(out[l.WagerID], l)
	}
	return out, rows.Err()
}

// SettleWager grava a decisão do rollup; aposta já liquidada devolve ErrAlreadySettled
func (p *Postgres) SettleWager(ctx context.Context, s settlement.WagerSettlement) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE wagers
		SET status='settled', result=$2, actual_return=$3, settlement_state=$4,
		    settled_at=$5, updated_at=now()
		WHERE id=$1 AND status <> 'settled' AND deleted_at IS NULL`,
		s.WagerID, string(s.Result), s.ActualReturn, string(s.SettlementState), s.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("settle wager %s: %w", s.WagerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return settlement.ErrAlreadySettled
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// AppendAudit insere uma linha no audit log; nunca atualiza
func (p *Postgres) AppendAudit(ctx context.Context, rec settlement.AuditRecord) error {
	return appendAudit(ctx, p.db, rec)
}

func appendAudit(ctx context.Context, e execer, rec settlement.AuditRecord) error {
	changes := rec.Changes
	if len(changes) == 0 {
		changes = []byte("{}")
	}
	_, err := e.ExecContext(ctx, `
		INSERT INTO audit_log (id, wager_id, action, actor, changes, created_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6)`,
		rec.ID, rec.WagerID, rec.Action, rec.Actor, string(changes), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", rec.Action, err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
