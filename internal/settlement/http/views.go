package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement/internal/settlement"
)

// WagerView é o JSON de saída da aposta; valores monetários saem como string
type WagerView struct {
	ID              string           `json:"id"`
	Kind            string           `json:"kind"`
	Teams           string           `json:"teams"`
	BetType         string           `json:"bet_type"`
	Odds            decimal.Decimal  `json:"odds"`
	Stake           decimal.Decimal  `json:"stake"`
	Currency        string           `json:"currency"`
	MatchTime       time.Time        `json:"match_time"`
	Status          string           `json:"status"`
	Result          *string          `json:"result"`
	ActualReturn    *decimal.Decimal `json:"actual_return"`
	SettlementState string           `json:"settlement_state"`
	SettledAt       *time.Time       `json:"settled_at"`
	Provider        string           `json:"provider,omitempty"`
	ProviderRef     string           `json:"provider_ref,omitempty"`
	Notes           *string          `json:"notes"`
	Legs            []LegView        `json:"legs"`
}

type LegView struct {
	ID              string          `json:"id"`
	Order           int             `json:"leg_order"`
	Teams           string          `json:"teams"`
	MarketType      string          `json:"market_type"`
	Selection       string          `json:"selection"`
	Line            *float64        `json:"line"`
	Odds            decimal.Decimal `json:"odds"`
	EventTime       time.Time       `json:"event_time"`
	Provider        string          `json:"provider,omitempty"`
	ProviderEventID string          `json:"provider_event_id,omitempty"`
	Settlement      string          `json:"settlement"`
	ScoreHome       *int            `json:"score_home"`
	ScoreAway       *int            `json:"score_away"`
	CheckedAt       *time.Time      `json:"checked_at"`
	SettledAt       *time.Time      `json:"settled_at"`
}

func toWagerView(w *settlement.Wager) WagerView {
	v := WagerView{
		ID:              w.ID,
		Kind:            string(w.Kind),
		Teams:           w.Teams,
		BetType:         w.BetType,
		Odds:            w.Odds,
		Stake:           w.Stake,
		Currency:        w.Currency,
		MatchTime:       w.MatchTime,
		Status:          string(w.Status),
		ActualReturn:    w.ActualReturn,
		SettlementState: string(w.SettlementState),
		SettledAt:       w.SettledAt,
		Provider:        w.Provider,
		ProviderRef:     w.ProviderRef,
		Notes:           w.Notes,
		Legs:            make([]LegView, 0, len(w.Legs)),
	}
	if w.Result != nil {
		r := string(*w.Result)
		v.Result = &r
	}
	for _, l := range w.Legs {
		v.Legs = append(v.Legs, LegView{
			ID:              l.ID,
			Order:           l.Order,
			Teams:           l.Teams,
			MarketType:      l.MarketType,
			Selection:       l.Selection,
			Line:            l.Line,
			Odds:            l.Odds,
			EventTime:       l.EventTime,
			Provider:        l.Provider,
			ProviderEventID: l.ProviderEventID,
			Settlement:      string(l.Settlement),
			ScoreHome:       l.ScoreHome,
			ScoreAway:       l.ScoreAway,
			CheckedAt:       l.CheckedAt,
			SettledAt:       l.SettledAt,
		})
	}
	return v
}
