package settlement

import (
	"time"

	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// SplitStatus is the lifecycle state of a settlement round.
type SplitStatus string

const (
	SplitOpen             SplitStatus = "open"
	SplitPartiallySettled SplitStatus = "partially_settled"
	SplitSettled          SplitStatus = "settled"
	SplitCancelled        SplitStatus = "cancelled"
)

// Terminal reports whether the split can no longer change.
func (s SplitStatus) Terminal() bool {
	return s == SplitSettled || s == SplitCancelled
}

// ContributionStatus is the payment state of a single obligation.
type ContributionStatus string

const (
	ContributionPending    ContributionStatus = "pending"
	ContributionProcessing ContributionStatus = "processing"
	ContributionPaid       ContributionStatus = "paid"
	ContributionFailed     ContributionStatus = "failed"
	ContributionWaived     ContributionStatus = "waived"
)

// Resolved reports whether this obligation no longer needs a payment.
func (s ContributionStatus) Resolved() bool {
	return s == ContributionPaid || s == ContributionWaived
}

// SplitSession is one attempt to settle a table session's bill. At most
// one non-terminal split exists per table session; switching strategies
// means cancelling and creating a new one.
type SplitSession struct {
	ID             int64             `json:"id"`
	TableSessionID int64             `json:"table_session_id"`
	Strategy       split.Type        `json:"strategy"`
	BaseAmount     money.Cents       `json:"base_amount_cents"`
	TipAmount      money.Cents       `json:"tip_amount_cents"`
	TipStrategy    split.TipStrategy `json:"tip_strategy"`
	Status         SplitStatus       `json:"status"`
	CancelReason   *string           `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Contribution is one participant's obligation and payment record within
// a split session. AmountPaid is only set together with the transition
// to paid. A waived contribution carries the giver in PaidByParticipantID
// and owes nothing itself.
type Contribution struct {
	ID                  int64              `json:"id"`
	SplitSessionID      int64              `json:"split_session_id"`
	ParticipantID       int64              `json:"participant_id"`
	AmountDue           money.Cents        `json:"amount_due_cents"`
	AmountPaid          money.Cents        `json:"amount_paid_cents"`
	PaymentRef          *string            `json:"payment_ref,omitempty"`
	Status              ContributionStatus `json:"status"`
	PaidByParticipantID *int64             `json:"paid_by_participant_id,omitempty"`
	UpdatedAt           time.Time          `json:"updated_at"`
}
