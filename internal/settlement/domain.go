package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind é o tipo da aposta
type Kind string

const (
	KindSingle Kind = "single"
	KindParlay Kind = "parlay"
)

// Status é o ciclo de vida exibido da aposta
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusFinished Status = "finished"
	StatusSettled  Status = "settled"
)

// Outcome é o resultado de liquidação de uma leg.
// Só transiciona de pending para um dos demais, nunca volta.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeWon         Outcome = "won"
	OutcomeLost        Outcome = "lost"
	OutcomePush        Outcome = "push"
	OutcomeVoid        Outcome = "void"
	OutcomeNeedsReview Outcome = "needs_review"
)

// Result é o resultado final da aposta
type Result string

const (
	ResultWon  Result = "won"
	ResultLost Result = "lost"
	ResultPush Result = "push"
	ResultVoid Result = "void"
)

// SettlementState indica se a aposta ainda espera, foi liquidada ou precisa de revisão humana
type SettlementState string

const (
	StatePending     SettlementState = "pending"
	StateSettled     SettlementState = "settled"
	StateNeedsReview SettlementState = "needs_review"
)

// Ações gravadas no audit log
const (
	AuditActionCreated       = "created"
	AuditActionAutoSettled   = "auto_settled"
	AuditActionStatusRefresh = "status_refreshed"
	AuditActionUpdated       = "updated"
	AuditActionDeleted       = "deleted"
)

// Wager é a aposta persistida; Legs em ordem de leg_order
type Wager struct {
	ID              string
	Kind            Kind
	Teams           string
	BetType         string
	Odds            decimal.Decimal
	Stake           decimal.Decimal
	Currency        string
	MatchTime       time.Time
	Status          Status
	Result          *Result
	ActualReturn    *decimal.Decimal
	SettlementState SettlementState
	SettledAt       *time.Time
	SubmittedBy     string
	Provider        string
	ProviderRef     string
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	Legs            []Leg
}

// Leg é uma seleção atômica dentro da aposta
type Leg struct {
	ID              string
	WagerID         string
	Order           int
	Teams           string
	MarketType      string
	Selection       string
	Line            *float64
	Odds            decimal.Decimal
	EventTime       time.Time
	Provider        string
	ProviderEventID string
	Settlement      Outcome
	ScoreHome       *int
	ScoreAway       *int
	CheckedAt       *time.Time
	SettledAt       *time.Time
}

// AuditRecord é append-only; Changes carrega o diff serializado em JSON
type AuditRecord struct {
	ID        string
	WagerID   string
	Action    string
	Actor     string
	Changes   []byte
	CreatedAt time.Time
}

// WagerPatch carrega só os campos enviados na edição.
// Nos campos anuláveis, Set* marca presença e valor nil limpa a coluna.
type WagerPatch struct {
	Kind      *Kind
	Teams     *string
	BetType   *string
	Odds      *decimal.Decimal
	Stake     *decimal.Decimal
	Currency  *string
	MatchTime *time.Time
	Status    *Status

	SetResult       bool
	Result          *Result
	SetActualReturn bool
	ActualReturn    *decimal.Decimal
	SetNotes        bool
	Notes           *string
}

func (p WagerPatch) Empty() bool {
	return p.Kind == nil && p.Teams == nil && p.BetType == nil && p.Odds == nil && p.Stake == nil &&
		p.Currency == nil && p.MatchTime == nil && p.Status == nil &&
		!p.SetResult && !p.SetActualReturn && !p.SetNotes
}

// Colunas aceitas na ordenação da listagem
const (
	SortMatchTime = "match_time"
	SortCreatedAt = "created_at"
	SortStake     = "stake"
	SortOdds      = "odds"
)

// WagerFilter é a consulta da listagem de apostas; deletadas nunca aparecem
type WagerFilter struct {
	Status Status // vazio = todos
	From   *time.Time
	To     *time.Time
	Search string // trecho de teams
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}
