package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CompensationStatus string

const (
	CompensationPending   CompensationStatus = "pending"
	CompensationDone      CompensationStatus = "done"
	CompensationAbandoned CompensationStatus = "abandoned"
)

// Compensation is a durable record of a charge that must be handed back
// because the registration it paid for never committed. It outlives the
// rolled-back payment row.
type Compensation struct {
	ID                  snowflake.ID       `json:"id"`
	PaymentID           snowflake.ID       `json:"payment_id"`
	EventID             snowflake.ID       `json:"event_id"`
	Provider            string             `json:"provider"`
	TransactionID       string             `json:"transaction_id"`
	Amount              int64              `json:"amount"`
	Currency            string             `json:"currency"`
	Reason              string             `json:"reason"`
	Status              CompensationStatus `json:"status"`
	Attempts            int                `json:"attempts"`
	LastError           *string            `json:"last_error,omitempty"`
	RefundTransactionID *string            `json:"refund_transaction_id,omitempty"`
	NextAttemptAt       time.Time          `json:"next_attempt_at"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// RetryBackoff doubles the base delay per attempt, capped at max.
func RetryBackoff(base, max time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
