package settlement

import (
	"regexp"
	"strconv"
	"strings"
)

// Tipos de mercado reconhecidos pelo avaliador
const (
	MarketOneXTwo     = "1x2"
	MarketMatchWinner = "match_winner"
	MarketOverUnder   = "over_under"
	MarketBTTS        = "btts"
	MarketCustom      = "custom"
)

// Market é o mercado estruturado extraído do texto livre da aposta
type Market struct {
	Type      string
	Selection string
	Line      *float64
}

var overUnderRe = regexp.MustCompile(`(?i)\b(over|under)\s*(\d+(?:\.\d+)?)\b`)

type alias struct {
	market    string
	selection string
}

var aliases = map[string]alias{
	"draw":                    {MarketOneXTwo, "draw"},
	"x":                       {MarketOneXTwo, "draw"},
	"home win":                {MarketOneXTwo, "home"},
	"home":                    {MarketOneXTwo, "home"},
	"1":                       {MarketOneXTwo, "home"},
	"away win":                {MarketOneXTwo, "away"},
	"away":                    {MarketOneXTwo, "away"},
	"2":                       {MarketOneXTwo, "away"},
	"btts":                    {MarketBTTS, "yes"},
	"both teams to score":     {MarketBTTS, "yes"},
	"btts yes":                {MarketBTTS, "yes"},
	"gg":                      {MarketBTTS, "yes"},
	"btts no":                 {MarketBTTS, "no"},
	"both teams not to score": {MarketBTTS, "no"},
	"ng":                      {MarketBTTS, "no"},
}

// NormalizeMarket converte o tipo de aposta em texto livre num mercado estruturado.
// Nunca falha: o que não for reconhecido cai em "custom" com o texto original.
func NormalizeMarket(raw string) Market {
	trimmed := strings.TrimSpace(raw)
	value := strings.ToLower(trimmed)

	if m := overUnderRe.FindStringSubmatch(value); m != nil {
		if line, err := strconv.ParseFloat(m[2], 64); err == nil {
			return Market{Type: MarketOverUnder, Selection: m[1], Line: &line}
		}
	}

	if a, ok := aliases[value]; ok {
		return Market{Type: a.market, Selection: a.selection}
	}

	return Market{Type: MarketCustom, Selection: trimmed}
}
