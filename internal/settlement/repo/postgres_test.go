package repo

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/internal/shared/db"
)

// Integração: roda só com TEST_POSTGRES_DSN apontando para um banco descartável
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	conn, err := db.ConnectPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	schema, err := os.ReadFile("schema.sql")
	require.NoError(t, err)
	_, err = conn.Exec(string(schema))
	require.NoError(t, err)
	return conn
}

func newWager(eventID string, eventTime time.Time) *settlement.Wager {
	line := 2.5
	return &settlement.Wager{
		Kind:            settlement.KindParlay,
		Teams:           "Arsenal vs Chelsea",
		BetType:         "parlay",
		Odds:            decimal.RequireFromString("3.0"),
		Stake:           decimal.RequireFromString("10"),
		Currency:        "EUR",
		MatchTime:       eventTime,
		Status:          settlement.StatusFinished,
		SettlementState: settlement.StatePending,
		SubmittedBy:     "tester",
		Legs: []settlement.Leg{
			{Order: 1, Teams: "Arsenal vs Chelsea", MarketType: "1x2", Selection: "home",
				Odds: decimal.RequireFromString("1.5"), EventTime: eventTime,
				Provider: "api_football", ProviderEventID: eventID, Settlement: settlement.OutcomePending},
			{Order: 2, Teams: "Arsenal vs Chelsea", MarketType: "over_under", Selection: "over", Line: &line,
				Odds: decimal.RequireFromString("2.0"), EventTime: eventTime,
				Provider: "api_football", ProviderEventID: eventID, Settlement: settlement.OutcomePending},
		},
	}
}

func createdAudit(actor string) settlement.AuditRecord {
	return settlement.AuditRecord{
		ID: uuid.NewString(), Action: settlement.AuditActionCreated, Actor: actor,
		Changes: []byte(`{"kind":"parlay"}`), CreatedAt: time.Now(),
	}
}

func TestPostgres_SettlementRoundTrip(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	eventID := uuid.NewString()
	w := newWager(eventID, time.Now().Add(-10*time.Hour).UTC().Truncate(time.Second))
	require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))
	require.NotEmpty(t, w.ID)

	legs, err := p.ListPendingLegs(ctx, 1000)
	require.NoError(t, err)
	var mine []settlement.Leg
	for _, l := range legs {
		if l.ProviderEventID == eventID {
			mine = append(mine, l)
		}
	}
	require.Len(t, mine, 2)
	for _, l := range mine {
		if l.Order == 2 {
			require.NotNil(t, l.Line)
			assert.InDelta(t, 2.5, *l.Line, 0.0001)
		}
	}

	now := time.Now().UTC()
	for _, l := range mine {
		require.NoError(t, p.UpdateLegOutcome(ctx, settlement.LegUpdate{
			LegID: l.ID, Outcome: settlement.OutcomeWon,
			ScoreHome: intRef(2), ScoreAway: intRef(1), CheckedAt: now, SettledAt: &now,
		}))
	}

	got, err := p.GetWager(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, got.Legs, 2)
	assert.Equal(t, settlement.OutcomeWon, got.Legs[0].Settlement)
	assert.Equal(t, 2, *got.Legs[0].ScoreHome)

	require.NoError(t, p.SettleWager(ctx, settlement.WagerSettlement{
		WagerID: w.ID, Result: settlement.ResultWon, ActualReturn: decimal.RequireFromString("30.00"),
		SettlementState: settlement.StateSettled, SettledAt: now,
	}))
	err = p.SettleWager(ctx, settlement.WagerSettlement{WagerID: w.ID, Result: settlement.ResultLost, SettlementState: settlement.StateSettled, SettledAt: now})
	require.ErrorIs(t, err, settlement.ErrAlreadySettled)

	require.NoError(t, p.AppendAudit(ctx, settlement.AuditRecord{
		ID: uuid.NewString(), WagerID: w.ID, Action: settlement.AuditActionAutoSettled,
		Actor: "system:settlement", Changes: []byte(`{"result":"won"}`), CreatedAt: now,
	}))

	got, err = p.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusSettled, got.Status)
	assert.Equal(t, "30.00", got.ActualReturn.StringFixed(2))

	open, err := p.ListSettleableWagers(ctx)
	require.NoError(t, err)
	for _, o := range open {
		assert.NotEqual(t, w.ID, o.ID)
	}
}

func TestPostgres_SoftDeleteHidesWager(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	eventID := uuid.NewString()
	w := newWager(eventID, time.Now().Add(-10*time.Hour))
	require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))

	del := settlement.AuditRecord{ID: uuid.NewString(), Action: settlement.AuditActionDeleted, Actor: "tester", CreatedAt: time.Now()}
	require.NoError(t, p.SoftDelete(ctx, w.ID, del))
	del.ID = uuid.NewString()
	require.ErrorIs(t, p.SoftDelete(ctx, w.ID, del), ErrNotFound)

	_, err := p.GetWager(ctx, w.ID)
	require.ErrorIs(t, err, ErrNotFound)

	legs, err := p.ListPendingLegs(ctx, 1000)
	require.NoError(t, err)
	for _, l := range legs {
		assert.NotEqual(t, eventID, l.ProviderEventID)
	}
}

func TestPostgres_UpdateStatus(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	w := newWager(uuid.NewString(), time.Now().Add(time.Hour))
	w.Status = settlement.StatusUpcoming
	require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))

	rec := settlement.AuditRecord{ID: uuid.NewString(), Action: settlement.AuditActionStatusRefresh, Actor: "tester", CreatedAt: time.Now()}
	require.NoError(t, p.UpdateStatus(ctx, w.ID, settlement.StatusLive, rec))

	got, err := p.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StatusLive, got.Status)
}

func TestPostgres_UpdateStatusAfterSettlement(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	w := newWager(uuid.NewString(), time.Now().Add(-time.Hour))
	w.Status = settlement.StatusUpcoming
	require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))

	// runner liquida entre a leitura e a escrita do refresh
	require.NoError(t, p.SettleWager(ctx, settlement.WagerSettlement{
		WagerID: w.ID, Result: settlement.ResultLost, ActualReturn: decimal.Zero,
		SettlementState: settlement.StateSettled, SettledAt: time.Now(),
	}))

	rec := settlement.AuditRecord{ID: uuid.NewString(), Action: settlement.AuditActionStatusRefresh, Actor: "tester", CreatedAt: time.Now()}
	require.ErrorIs(t, p.UpdateStatus(ctx, w.ID, settlement.StatusLive, rec), settlement.ErrAlreadySettled)
	require.ErrorIs(t, p.UpdateStatus(ctx, uuid.NewString(), settlement.StatusLive, rec), ErrNotFound)
}

func TestPostgres_PatchWager(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	w := newWager(uuid.NewString(), time.Now().Add(time.Hour))
	require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))

	stake := decimal.RequireFromString("25.50")
	notes := "corrigido pelo suporte"
	rec := settlement.AuditRecord{ID: uuid.NewString(), Action: settlement.AuditActionUpdated, Actor: "tester", Changes: []byte(`{"stake":"25.50"}`), CreatedAt: time.Now()}
	require.NoError(t, p.PatchWager(ctx, w.ID, settlement.WagerPatch{Stake: &stake, SetNotes: true, Notes: &notes}, rec))

	got, err := p.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, stake.Equal(got.Stake))
	require.NotNil(t, got.Notes)
	assert.Equal(t, notes, *got.Notes)
	assert.Equal(t, "Arsenal vs Chelsea", got.Teams, "campos fora do patch ficam intactos")

	rec.ID = uuid.NewString()
	require.NoError(t, p.PatchWager(ctx, w.ID, settlement.WagerPatch{SetNotes: true}, rec))
	got, err = p.GetWager(ctx, w.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Notes)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT count(*) FROM audit_log WHERE wager_id=$1 AND action='updated'`, w.ID).Scan(&n))
	assert.Equal(t, 2, n)

	del := settlement.AuditRecord{ID: uuid.NewString(), Action: settlement.AuditActionDeleted, Actor: "tester", CreatedAt: time.Now()}
	require.NoError(t, p.SoftDelete(ctx, w.ID, del))
	rec.ID = uuid.NewString()
	require.ErrorIs(t, p.PatchWager(ctx, w.ID, settlement.WagerPatch{Stake: &stake}, rec), ErrNotFound)
}

func TestPostgres_ListWagers(t *testing.T) {
	conn := testDB(t)
	p := NewPostgres(conn)
	ctx := context.Background()

	tag := uuid.NewString()[:8]
	base := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	for i, stake := range []string{"10", "30", "20"} {
		w := newWager(uuid.NewString(), base.Add(time.Duration(i)*time.Hour))
		w.Teams = "Lista " + tag + " vs Time"
		w.Status = settlement.StatusUpcoming
		w.Stake = decimal.RequireFromString(stake)
		require.NoError(t, p.CreateWager(ctx, w, createdAudit("tester")))
	}

	got, total, err := p.ListWagers(ctx, settlement.WagerFilter{Search: strings.ToUpper(tag), Sort: settlement.SortStake, Desc: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, got, 2)
	assert.Equal(t, "30", got[0].Stake.String())
	assert.Equal(t, "20", got[1].Stake.String())
	assert.Len(t, got[0].Legs, 2)

	from := base.Add(90 * time.Minute)
	got, total, err = p.ListWagers(ctx, settlement.WagerFilter{Search: tag, From: &from, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, "20", got[0].Stake.String())
}

func intRef(v int) *int { return &v }
