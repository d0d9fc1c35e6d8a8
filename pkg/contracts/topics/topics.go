package topics

const (
	// Wagers
	WagerSubmitted = "wager_submitted"
	WagerSettled   = "wager_settled"

	// DLQs
	WagerSubmittedDLQ = "wager_submitted_dlq"

	// Redis Pub/Sub
	SettlementBroadcast = "settlement_broadcast"
)
