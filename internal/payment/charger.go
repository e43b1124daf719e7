// Package payment abstracts the card terminal the waitstaff brings to
// the table. The coordinator only cares whether a charge went through
// and what reference the terminal printed on the slip.
package payment

import (
	"context"

	"github.com/google/uuid"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// Result is the outcome of a charge attempt. Reference is the
// terminal's receipt identifier and is recorded on the contribution.
type Result struct {
	Succeeded bool
	Reference string
}

// Charger executes a charge against a participant's chosen payment
// method. Implementations must be safe for concurrent use.
type Charger interface {
	Charge(ctx context.Context, participantID int64, amount money.Cents, method string) (Result, error)
}

// TerminalCharger is the default charger. It approves every charge and
// mints a receipt reference; the real terminal integration sits behind
// the same interface.
type TerminalCharger struct{}

// Charge approves the payment and returns a fresh receipt reference.
func (TerminalCharger) Charge(ctx context.Context, participantID int64, amount money.Cents, method string) (Result, error) {
	return Result{
		Succeeded: true,
		Reference: "term-" + uuid.NewString(),
	}, nil
}
