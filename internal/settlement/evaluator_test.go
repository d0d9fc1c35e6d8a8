package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/radieske/bet-settlement/internal/settlement/provider"
)

func score(v int) *int { return &v }

func finished(home, away int) provider.Fixture {
	return provider.Fixture{
		ProviderEventID: "100",
		Status:          provider.StatusFinished,
		HomeTeam:        "Manchester  United",
		AwayTeam:        "Liverpool",
		ScoreHome:       score(home),
		ScoreAway:       score(away),
	}
}

func leg(market, selection string, line *float64) Leg {
	return Leg{MarketType: market, Selection: selection, Line: line, Settlement: OutcomePending}
}

func TestEvaluateLeg(t *testing.T) {
	l := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		leg  Leg
		fx   provider.Fixture
		want Outcome
	}{
		{"home wins", leg("1x2", "home", nil), finished(2, 1), OutcomeWon},
		{"draw loses", leg("1x2", "draw", nil), finished(2, 1), OutcomeLost},
		{"draw wins", leg("1X2", "Draw", nil), finished(1, 1), OutcomeWon},
		{"away loses", leg("1x2", "away", nil), finished(2, 1), OutcomeLost},
		{"match_winner alias", leg("Match_Winner", "away", nil), finished(0, 3), OutcomeWon},
		{"home team by name", leg("1x2", "manchester united", nil), finished(2, 1), OutcomeWon},
		{"away team by name", leg("1x2", " LIVERPOOL ", nil), finished(2, 1), OutcomeLost},
		{"unknown team", leg("1x2", "Everton", nil), finished(2, 1), OutcomeNeedsReview},
		{"over wins", leg("over_under", "over", l(2.5)), finished(2, 1), OutcomeWon},
		{"under wins strictly", leg("over_under", "under", l(3.5)), finished(2, 1), OutcomeWon},
		{"over at exact line loses", leg("over_under", "over", l(3)), finished(2, 1), OutcomeLost},
		{"under at exact line loses", leg("over_under", "under", l(3)), finished(2, 1), OutcomeLost},
		{"over_under without line", leg("over_under", "over", nil), finished(2, 1), OutcomeNeedsReview},
		{"over_under bad selection", leg("over_under", "exactly", l(2.5)), finished(2, 1), OutcomeNeedsReview},
		{"btts yes wins", leg("btts", "yes", nil), finished(2, 1), OutcomeWon},
		{"btts yes loses", leg("btts", "yes", nil), finished(2, 0), OutcomeLost},
		{"btts no wins", leg("btts", "no", nil), finished(0, 0), OutcomeWon},
		{"btts bad selection", leg("btts", "maybe", nil), finished(1, 1), OutcomeNeedsReview},
		{"custom market", leg("custom", "Asian Handicap -1", nil), finished(2, 1), OutcomeNeedsReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateLeg(tt.leg, tt.fx))
		})
	}
}

func TestEvaluateLeg_NotFinishedIsPending(t *testing.T) {
	for _, st := range []provider.FixtureStatus{provider.StatusScheduled, provider.StatusLive} {
		fx := finished(2, 1)
		fx.Status = st
		assert.Equal(t, OutcomePending, EvaluateLeg(leg("1x2", "home", nil), fx), st)
	}
}

func TestEvaluateLeg_MissingScoreNeedsReview(t *testing.T) {
	l := 2.5
	fx := provider.Fixture{Status: provider.StatusFinished, ScoreHome: nil, ScoreAway: score(1)}

	for _, lg := range []Leg{
		leg("1x2", "home", nil),
		leg("over_under", "over", &l),
		leg("btts", "yes", nil),
		leg("custom", "whatever", nil),
	} {
		assert.Equal(t, OutcomeNeedsReview, EvaluateLeg(lg, fx), lg.MarketType)
	}
}
