package events

import "time"

// Evento emitido pelo settlement-worker após o rollup de uma aposta.
type WagerSettled struct {
	WagerID         string    `json:"wager_id"`
	CycleID         string    `json:"cycle_id"`
	Result          string    `json:"result"`           // "won" | "lost" | "push" | "void"
	ActualReturn    string    `json:"actual_return"`    // decimal em string, ex: "100.00"
	SettlementState string    `json:"settlement_state"` // "settled" | "needs_review"
	Actor           string    `json:"actor"`
	Ts              time.Time `json:"ts"`
}
