package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement/internal/settlement"
)

// CreateWager insere aposta, legs e o registro de auditoria na mesma transação.
// IDs vazios são preenchidos aqui.
func (p *Postgres) CreateWager(ctx context.Context, w *settlement.Wager, audit settlement.AuditRecord) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO wagers
		  (id, kind, teams, bet_type, odds, stake, currency, match_time, status,
		   settlement_state, submitted_by, provider, provider_ref, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),NULLIF($13,''),$14)`,
		w.ID, string(w.Kind), w.Teams, w.BetType, w.Odds, w.Stake, w.Currency, w.MatchTime,
		string(w.Status), string(w.SettlementState), w.SubmittedBy, w.Provider, w.ProviderRef, w.Notes,
	); err != nil {
		return fmt.Errorf("insert wager: %w", err)
	}

	for i := range w.Legs {
		l := &w.Legs[i]
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.WagerID = w.ID
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO wager_legs
			  (id, wager_id, leg_order, teams, market_type, selection, line, odds,
			   event_time, provider, provider_event_id, settlement)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12)`,
			l.ID, w.ID, l.Order, l.Teams, l.MarketType, l.Selection, l.Line, l.Odds,
			l.EventTime, l.Provider, l.ProviderEventID, string(l.Settlement),
		); err != nil {
			return fmt.Errorf("insert leg %d: %w", l.Order, err)
		}
	}

	audit.WagerID = w.ID
	if err = appendAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// GetWager devolve a aposta com legs; apostas deletadas não existem para a leitura
func (p *Postgres) GetWager(ctx context.Context, id string) (*settlement.Wager, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+wagerColumns+`
		FROM wagers w
		WHERE w.id=$1 AND w.deleted_at IS NULL`, id)
	w, err := scanWager(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wager %s: %w", id, err)
	}

	legs, err := p.legsFor(ctx, p.db, []string{id})
	if err != nil {
		return nil, err
	}
	w.Legs = legs[id]
	return &w, nil
}

// UpdateStatus persiste a transição de status calculada no read path.
// Aposta deletada devolve ErrNotFound; aposta que virou settled no meio do caminho
// devolve settlement.ErrAlreadySettled e nada é gravado.
func (p *Postgres) UpdateStatus(ctx context.Context, id string, status settlement.Status, audit settlement.AuditRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wagers SET status=$2, updated_at=now()
		WHERE id=$1 AND status <> 'settled' AND deleted_at IS NULL`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return missingOrSettled(ctx, tx, id)
	}

	audit.WagerID = id
	if err = appendAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// missingOrSettled explica um UPDATE que não afetou linha nenhuma
func missingOrSettled(ctx context.Context, tx *sql.Tx, id string) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM wagers WHERE id=$1 AND deleted_at IS NULL`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("check wager %s: %w", id, err)
	case settlement.Status(status) == settlement.StatusSettled:
		return settlement.ErrAlreadySettled
	}
	return ErrNotFound
}

// SoftDelete marca deleted_at; a linha nunca é removida
func (p *Postgres) SoftDelete(ctx context.Context, id string, audit settlement.AuditRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wagers SET deleted_at=now(), updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	audit.WagerID = id
	if err = appendAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// PatchWager grava só os campos presentes no patch e o registro de auditoria na mesma transação.
// Aposta deletada devolve ErrNotFound.
func (p *Postgres) PatchWager(ctx context.Context, id string, patch settlement.WagerPatch, audit settlement.AuditRecord) error {
	if patch.Empty() {
		return errors.New("empty patch")
	}

	args := []any{id}
	var set []string
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if patch.Kind != nil {
		add("kind", string(*patch.Kind))
	}
	if patch.Teams != nil {
		add("teams", *patch.Teams)
	}
	if patch.BetType != nil {
		add("bet_type", *patch.BetType)
	}
	if patch.Odds != nil {
		add("odds", *patch.Odds)
	}
	if patch.Stake != nil {
		add("stake", *patch.Stake)
	}
	if patch.Currency != nil {
		add("currency", *patch.Currency)
	}
	if patch.MatchTime != nil {
		add("match_time", *patch.MatchTime)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.SetResult {
		var r *string
		if patch.Result != nil {
			v := string(*patch.Result)
			r = &v
		}
		add("result", r)
	}
	if patch.SetActualReturn {
		ret := decimal.NullDecimal{}
		if patch.ActualReturn != nil {
			ret = decimal.NullDecimal{Decimal: *patch.ActualReturn, Valid: true}
		}
		add("actual_return", ret)
	}
	if patch.SetNotes {
		add("notes", patch.Notes)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE wagers SET `+strings.Join(set, ", ")+`, updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL`, args...)
	if err != nil {
		return fmt.Errorf("patch wager %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	audit.WagerID = id
	if err = appendAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit()
}

// colunas liberadas para ORDER BY; nunca interpolar texto vindo da query
var sortColumns = map[string]string{
	settlement.SortMatchTime: "w.match_time",
	settlement.SortCreatedAt: "w.created_at",
	settlement.SortStake:     "w.stake",
	settlement.SortOdds:      "w.odds",
}

// ListWagers devolve uma página de apostas não deletadas com legs e o total do filtro
func (p *Postgres) ListWagers(ctx context.Context, f settlement.WagerFilter) ([]settlement.Wager, int, error) {
	var (
		where = []string{"w.deleted_at IS NULL"}
		args  []any
	)
	cond := func(expr string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(expr, len(args)))
	}
	if f.Status != "" {
		cond("w.status=$%d", string(f.Status))
	}
	if f.Search != "" {
		cond("w.teams ILIKE '%%' || $%d || '%%'", f.Search)
	}
	if f.From != nil {
		cond("w.match_time >= $%d", *f.From)
	}
	if f.To != nil {
		cond("w.match_time <= $%d", *f.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM wagers w WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count wagers: %w", err)
	}

	col, ok := sortColumns[f.Sort]
	if !ok {
		col = sortColumns[settlement.SortMatchTime]
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	pageArgs := append(append([]any{}, args...), limit, f.Offset)

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+wagerColumns+`
		FROM wagers w
		WHERE %s
		ORDER BY %s %s, w.id
		LIMIT $%d OFFSET $%d`, clause, col, dir, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list wagers: %w", err)
	}
	defer rows.Close()

	var (
		wagers []settlement.Wager
		ids    []string
	)
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan wager: %w", err)
		}
		wagers = append(wagers, w)
		ids = append(ids, w.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return wagers, total, nil
	}

	legs, err := p.legsFor(ctx, p.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range wagers {
		wagers[i].Legs = legs[wagers[i].ID]
	}
	return wagers, total, nil
}

// Ping é usado pelo /healthz
func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
