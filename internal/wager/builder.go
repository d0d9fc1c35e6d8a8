package wager

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/radieske/bet-settlement/internal/settlement"
	"github.com/radieske/bet-settlement/pkg/contracts/events"
)

// ErrInvalidWager marca payloads rejeitados na entrada; vão para a DLQ sem retry
var ErrInvalidWager = errors.New("invalid wager")

var minOdds = decimal.RequireFromString("1.01")

// Build valida a submissão e monta a aposta pronta para persistir.
// Aposta simples sem legs ganha uma leg sintetizada a partir do bet_type.
func Build(e events.WagerSubmitted, now time.Time) (*settlement.Wager, error) {
	kind := settlement.Kind(strings.ToLower(strings.TrimSpace(e.Kind)))
	if kind == "" {
		kind = settlement.KindSingle
	}

	var errs []error
	if kind != settlement.KindSingle && kind != settlement.KindParlay {
		errs = append(errs, fmt.Errorf("kind %q", e.Kind))
	}
	errs = append(errs, textLen("teams", e.Teams, 3, 200), textLen("bet_type", e.BetType, 2, 100))

	odds := decimal.NewFromFloat(e.Odds)
	if odds.LessThan(minOdds) {
		errs = append(errs, fmt.Errorf("odds %s below %s", odds, minOdds))
	}
	stake := decimal.NewFromFloat(e.Stake)
	if !stake.IsPositive() {
		errs = append(errs, errors.New("stake must be positive"))
	}
	currency := strings.ToUpper(strings.TrimSpace(e.Currency))
	if utf8.RuneCountInString(currency) != 3 {
		errs = append(errs, fmt.Errorf("currency %q must have 3 letters", e.Currency))
	}
	if e.MatchTime.IsZero() {
		errs = append(errs, errors.New("match_time is required"))
	}

	status := settlement.Status(strings.ToLower(e.Status))
	switch status {
	case "":
		status = settlement.Classify(e.MatchTime, "", now)
	case settlement.StatusUpcoming, settlement.StatusLive, settlement.StatusFinished, settlement.StatusSettled:
	default:
		errs = append(errs, fmt.Errorf("status %q", e.Status))
	}

	errs = append(errs, checkLegCount(kind, len(e.Legs)))

	var notes *string
	if n := strings.TrimSpace(e.Notes); n != "" {
		errs = append(errs, textLen("notes", n, 1, 2000))
		notes = &n
	}

	w := &settlement.Wager{
		Kind:            kind,
		Teams:           strings.TrimSpace(e.Teams),
		BetType:         strings.TrimSpace(e.BetType),
		Odds:            odds,
		Stake:           stake,
		Currency:        currency,
		MatchTime:       e.MatchTime,
		Status:          status,
		SettlementState: settlement.StatePending,
		SubmittedBy:     e.SubmittedBy,
		Provider:        e.Provider,
		ProviderRef:     e.ProviderRef,
		Notes:           notes,
	}

	for i, sl := range e.Legs {
		leg, err := buildLeg(sl, i+1, e.Provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("leg %d: %w", i+1, err))
			continue
		}
		w.Legs = append(w.Legs, leg)
	}
	if len(e.Legs) == 0 {
		w.Legs = []settlement.Leg{defaultLeg(w)}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWager, err)
	}
	return w, nil
}

// checkLegCount: parlay com 2 ou mais legs, simples com no máximo 1 (zero vira a leg sintetizada)
func checkLegCount(kind settlement.Kind, n int) error {
	switch {
	case kind == settlement.KindParlay && n < 2:
		return errors.New("parlay requires at least 2 legs")
	case kind == settlement.KindSingle && n > 1:
		return errors.New("single requires exactly 1 leg")
	}
	return nil
}

func buildLeg(sl events.SubmittedLeg, order int, wagerProvider string) (settlement.Leg, error) {
	errs := []error{
		textLen("teams", sl.Teams, 3, 200),
		textLen("market_type", sl.MarketType, 2, 80),
		textLen("selection", sl.Selection, 1, 120),
	}
	odds := decimal.NewFromFloat(sl.Odds)
	if odds.LessThan(minOdds) {
		errs = append(errs, fmt.Errorf("odds %s below %s", odds, minOdds))
	}
	if sl.EventTime.IsZero() {
		errs = append(errs, errors.New("event_time is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return settlement.Leg{}, err
	}

	prov := sl.Provider
	if prov == "" {
		prov = wagerProvider
	}
	return settlement.Leg{
		Order:           order,
		Teams:           strings.TrimSpace(sl.Teams),
		MarketType:      strings.TrimSpace(sl.MarketType),
		Selection:       strings.TrimSpace(sl.Selection),
		Line:            sl.Line,
		Odds:            odds,
		EventTime:       sl.EventTime,
		Provider:        prov,
		ProviderEventID: sl.ProviderEventID,
		Settlement:      settlement.OutcomePending,
	}, nil
}

// defaultLeg sintetiza a leg única de uma aposta simples; o provider_ref vira o event id
func defaultLeg(w *settlement.Wager) settlement.Leg {
	m := settlement.NormalizeMarket(w.BetType)
	return settlement.Leg{
		Order:           1,
		Teams:           w.Teams,
		MarketType:      m.Type,
		Selection:       m.Selection,
		Line:            m.Line,
		Odds:            w.Odds,
		EventTime:       w.MatchTime,
		Provider:        w.Provider,
		ProviderEventID: w.ProviderRef,
		Settlement:      settlement.OutcomePending,
	}
}

func textLen(field, v string, lo, hi int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n < lo || n > hi {
		return fmt.Errorf("%s must have %d-%d characters", field, lo, hi)
	}
	return nil
}
