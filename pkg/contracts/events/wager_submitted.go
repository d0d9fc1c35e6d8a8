package events

import "time"

// Evento publicado pela camada de entrada (formulário ou extração de imagem)
// no tópico "wager_submitted". Legs é opcional para apostas simples.
type WagerSubmitted struct {
	SubmissionID string         `json:"submission_id"`
	Kind         string         `json:"kind"` // "single" | "parlay"
	Teams        string         `json:"teams"`
	BetType      string         `json:"bet_type"`
	Odds         float64        `json:"odds"`
	Stake        float64        `json:"stake"`
	Currency     string         `json:"currency"`
	MatchTime    time.Time      `json:"match_time"`
	Status       string         `json:"status,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	ProviderRef  string         `json:"provider_ref,omitempty"`
	SubmittedBy  string         `json:"submitted_by,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Legs         []SubmittedLeg `json:"legs,omitempty"`
}

type SubmittedLeg struct {
	Teams           string    `json:"teams"`
	MarketType      string    `json:"market_type"`
	Selection       string    `json:"selection"`
	Line            *float64  `json:"line,omitempty"`
	Odds            float64   `json:"odds"`
	EventTime       time.Time `json:"event_time"`
	Provider        string    `json:"provider,omitempty"`
	ProviderEventID string    `json:"provider_event_id,omitempty"`
}
