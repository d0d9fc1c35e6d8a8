package settlement

import (
	"strings"

	"github.com/radieske/bet-settlement/internal/settlement/provider"
)

// EvaluateLeg decide o resultado de uma leg contra a partida encerrada.
// Não adivinha: placar ausente ou mercado/seleção desconhecidos viram needs_review.
func EvaluateLeg(leg Leg, fx provider.Fixture) Outcome {
	if fx.Status != provider.StatusFinished {
		return OutcomePending
	}
	if fx.ScoreHome == nil || fx.ScoreAway == nil {
		return OutcomeNeedsReview
	}
	home, away := *fx.ScoreHome, *fx.ScoreAway

	pick := strings.ToLower(strings.TrimSpace(leg.Selection))

	switch strings.ToLower(strings.TrimSpace(leg.MarketType)) {
	case MarketOneXTwo, MarketMatchWinner:
		switch pick {
		case "draw":
			return wonIf(home == away)
		case "home":
			return wonIf(home > away)
		case "away":
			return wonIf(away > home)
		}
		switch {
		case sameTeam(pick, fx.HomeTeam):
			return wonIf(home > away)
		case sameTeam(pick, fx.AwayTeam):
			return wonIf(away > home)
		}
		return OutcomeNeedsReview

	case MarketOverUnder:
		if leg.Line == nil {
			return OutcomeNeedsReview
		}
		total := float64(home + away)
		// linha exata perde para os dois lados; não existe push neste mercado
		switch pick {
		case "over":
			return wonIf(total > *leg.Line)
		case "under":
			return wonIf(total < *leg.Line)
		}
		return OutcomeNeedsReview

	case MarketBTTS:
		bothScored := home > 0 && away > 0
		switch pick {
		case "yes":
			return wonIf(bothScored)
		case "no":
			return wonIf(!bothScored)
		}
		return OutcomeNeedsReview
	}

	return OutcomeNeedsReview
}

func wonIf(ok bool) Outcome {
	if ok {
		return OutcomeWon
	}
	return OutcomeLost
}

// sameTeam compara nomes ignorando caixa e espaços repetidos
func sameTeam(a, b string) bool {
	na, nb := collapse(a), collapse(b)
	return na != "" && na == nb
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
