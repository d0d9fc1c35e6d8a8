package settlement

import "github.com/shopspring/decimal"

// LegResult é o recorte da leg que o rollup precisa
type LegResult struct {
	Settlement Outcome
	Odds       decimal.Decimal
}

// RollupResult é a decisão sobre a aposta inteira; Done=false significa esperar outro ciclo
type RollupResult struct {
	Done            bool
	Result          Result
	Payout          decimal.Decimal
	SettlementState SettlementState
}

// Rollup combina as legs numa decisão de aposta. Serve para simples e múltiplas.
// Ordem: pending > needs_review > lost > (sem won => push) > won.
func Rollup(legs []LegResult, stake decimal.Decimal) RollupResult {
	var anyReview, anyLost, anyWon bool
	for _, l := range legs {
		switch l.Settlement {
		case OutcomePending:
			return RollupResult{Done: false}
		case OutcomeNeedsReview:
			anyReview = true
		case OutcomeLost:
			anyLost = true
		case OutcomeWon:
			anyWon = true
		}
	}

	switch {
	case anyReview:
		return RollupResult{Done: true, Result: ResultVoid, Payout: stake, SettlementState: StateNeedsReview}
	case anyLost:
		return RollupResult{Done: true, Result: ResultLost, Payout: decimal.Zero, SettlementState: StateSettled}
	case !anyWon:
		return RollupResult{Done: true, Result: ResultPush, Payout: stake, SettlementState: StateSettled}
	}

	product := decimal.NewFromInt(1)
	for _, l := range legs {
		if l.Settlement == OutcomeWon {
			product = product.Mul(l.Odds)
		}
	}
	return RollupResult{
		Done:            true,
		Result:          ResultWon,
		Payout:          stake.Mul(product).Round(2),
		SettlementState: StateSettled,
	}
}

// LegResults extrai o recorte de rollup das legs da aposta
func LegResults(legs []Leg) []LegResult {
	out := make([]LegResult, 0, len(legs))
	for _, l := range legs {
		out = append(out, LegResult{Settlement: l.Settlement, Odds: l.Odds})
	}
	return out
}
