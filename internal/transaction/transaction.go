package transaction

import (
	"fmt"
	"strings"
	"time"
)

// Record is the unit of distribution: one persisted transaction event.
//
// CreatedAt and Seq are assigned by the record store at persist time and are
// never mutated afterwards. Seq is a store-internal row key and is not exposed
// to consumers.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId,omitempty"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency,omitempty"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	Seq         uint64    `json:"-"`
}

// Request is the inbound transaction submission.
type Request struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	Description string  `json:"description"`
}

// ValidationError reports a malformed or incomplete request. It is surfaced
// synchronously to the caller before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: field %q %s", e.Field, e.Reason)
}

// Validate checks the presence constraints on the request: a non-empty UUID
// identifier and a non-empty status.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if r.Status == "" {
		return &ValidationError{Field: "status", Reason: "must not be empty"}
	}
	return nil
}

// ToRecord maps the request onto a record verbatim. CreatedAt and Seq are left
// zero for the store to assign.
func (r *Request) ToRecord() *Record {
	return &Record{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Status:      r.Status,
		Description: r.Description,
	}
}

// Outcome is the structured result of a submission. A raw error never crosses
// the submit boundary.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Submission outcome messages, kept stable for API consumers.
const (
	MsgProcessed = "Transaction processed successfully"
	MsgFailed    = "Transaction failed due to an unexpected error"
)

// SuccessOutcome is the outcome returned for a processed submission.
func SuccessOutcome() Outcome { return Outcome{Success: true, Message: MsgProcessed} }

// FailureOutcome is the outcome returned when processing failed after retries.
func FailureOutcome() Outcome { return Outcome{Success: false, Message: MsgFailed} }

// RejectedOutcome is the outcome returned for a validation failure.
func RejectedOutcome(err error) Outcome { return Outcome{Success: false, Message: err.Error()} }
