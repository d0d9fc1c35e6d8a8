package simulator

import (
	"strconv"
	"time"
)

// Duração simulada de cada fase da partida
const (
	FirstHalf  = 45 * time.Minute
	HalfTime   = 15 * time.Minute
	SecondHalf = 45 * time.Minute
)

// Match é uma partida do catálogo; Kickoff é relativo à subida do simulador
type Match struct {
	ID        int64
	HomeTeam  string
	AwayTeam  string
	Kickoff   time.Duration
	FinalHome int
	FinalAway int
	Abandoned bool // encerra como ABD sem placar
}

// DefaultCatalog cobre os caminhos do settlement: encerradas, ao vivo, futuras e abandonada
var DefaultCatalog = []Match{
	{ID: 1001, HomeTeam: "Flamengo", AwayTeam: "Palmeiras", Kickoff: -3 * time.Hour, FinalHome: 2, FinalAway: 1},
	{ID: 1002, HomeTeam: "Grêmio", AwayTeam: "Internacional", Kickoff: -4 * time.Hour, FinalHome: 0, FinalAway: 0},
	{ID: 1003, HomeTeam: "Corinthians", AwayTeam: "Santos", Kickoff: -30 * time.Minute, FinalHome: 1, FinalAway: 3},
	{ID: 1004, HomeTeam: "São Paulo", AwayTeam: "Vasco", Kickoff: 20 * time.Minute, FinalHome: 2, FinalAway: 2},
	{ID: 1005, HomeTeam: "Botafogo", AwayTeam: "Fluminense", Kickoff: -5 * time.Hour, Abandoned: true},
	{ID: 1006, HomeTeam: "Atlético Mineiro", AwayTeam: "Cruzeiro", Kickoff: 2 * time.Minute, FinalHome: 3, FinalAway: 1},
}

// Catalog responde o estado de cada partida num instante
type Catalog struct {
	start   time.Time
	matches map[int64]Match
}

func NewCatalog(start time.Time, matches []Match) *Catalog {
	c := &Catalog{start: start, matches: make(map[int64]Match, len(matches))}
	for _, m := range matches {
		c.matches[m.ID] = m
	}
	return c
}

// Snapshot é o estado da partida no formato que a API devolve
type Snapshot struct {
	Match
	Short     string
	Elapsed   *int
	GoalsHome *int
	GoalsAway *int
	KickoffAt time.Time
}

// At calcula o snapshot de uma partida; ok=false se o id não existe
func (c *Catalog) At(id string, now time.Time) (Snapshot, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Snapshot{}, false
	}
	m, ok := c.matches[n]
	if !ok {
		return Snapshot{}, false
	}

	kickoff := c.start.Add(m.Kickoff)
	s := Snapshot{Match: m, KickoffAt: kickoff}
	played := now.Sub(kickoff)
	full := FirstHalf + HalfTime + SecondHalf

	switch {
	case played < 0:
		s.Short = "NS"
		return s, true
	case m.Abandoned && played >= FirstHalf:
		s.Short = "ABD"
		return s, true
	case played < FirstHalf:
		s.Short = "1H"
	case played < FirstHalf+HalfTime:
		s.Short = "HT"
	case played < full:
		s.Short = "2H"
	default:
		s.Short = "FT"
		s.GoalsHome, s.GoalsAway = ref(m.FinalHome), ref(m.FinalAway)
		s.Elapsed = ref(90)
		return s, true
	}

	// gols saem proporcionais ao tempo jogado
	minute := int(minutesPlayed(played) / time.Minute)
	s.Elapsed = ref(minute)
	s.GoalsHome = ref(m.FinalHome * minute / 90)
	s.GoalsAway = ref(m.FinalAway * minute / 90)
	return s, true
}

// minutesPlayed desconta o intervalo
func minutesPlayed(played time.Duration) time.Duration {
	switch {
	case played < FirstHalf:
		return played
	case played < FirstHalf+HalfTime:
		return FirstHalf
	default:
		return played - HalfTime
	}
}

func ref(v int) *int { return &v }
