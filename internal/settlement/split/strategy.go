// Package split calculates how a table's bill is divided among the
// participants of a settlement round. All math is done in integer minor
// units; rounding remainders always land on the earliest-joined
// participants so a recalculation is deterministic.
package split

import (
	"errors"
	"fmt"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// Type identifies a split strategy
type Type string

const (
	TypeEqual   Type = "equal"
	TypePerItem Type = "per_item"
	TypeCustom  Type = "custom"
	TypeGift    Type = "gift"
)

// TipStrategy identifies how the tip is divided on top of the base split
type TipStrategy string

const (
	TipNone         TipStrategy = "none"
	TipEqual        TipStrategy = "equal"
	TipProportional TipStrategy = "proportional"
	TipCustom       TipStrategy = "custom"
)

// Participant is one diner taking part in the settlement, in join order.
// OrderTotal is the sum of their confirmed orders.
type Participant struct {
	ID         int64       `json:"participant_id"`
	OrderTotal money.Cents `json:"order_total_cents"`
}

// CustomAmount pins an explicit amount to a participant for the custom
// base split or the custom tip split.
type CustomAmount struct {
	ParticipantID int64       `json:"participant_id"`
	Amount        money.Cents `json:"amount_cents"`
}

// Gift declares that one participant covers another's share.
type Gift struct {
	GiverID     int64 `json:"giver_participant_id"`
	RecipientID int64 `json:"recipient_participant_id"`
}

// Input carries everything a strategy needs to divide a bill.
type Input struct {
	Participants []Participant
	Base         money.Cents
	Tip          money.Cents
	TipStrategy  TipStrategy
	Custom       []CustomAmount
	CustomTips   []CustomAmount
	Gifts        []Gift
}

// Share is the calculated obligation of a single participant. A waived
// share is settled by someone else: AmountDue is zero and PaidBy names
// the participant who absorbed it.
type Share struct {
	ParticipantID int64       `json:"participant_id"`
	AmountDue     money.Cents `json:"amount_due_cents"`
	Waived        bool        `json:"waived"`
	PaidBy        *int64      `json:"paid_by_participant_id,omitempty"`
}

// Strategy is the interface that all split strategies must implement
type Strategy interface {
	// Calculate computes each participant's share. The sum of all shares
	// always equals Base plus Tip.
	Calculate(in Input) ([]Share, error)

	// Type returns the type identifier for this strategy
	Type() Type

	// Validate checks if the input is valid for this strategy
	Validate(in Input) error
}

// Factory creates split strategies based on the requested type
type Factory struct{}

// NewFactory creates a new factory instance
func NewFactory() *Factory {
	return &Factory{}
}

// Create returns the strategy implementation for the given type
func (f *Factory) Create(t Type) (Strategy, error) {
	switch t {
	case TypeEqual:
		return &EqualStrategy{}, nil
	case TypePerItem:
		return &PerItemStrategy{}, nil
	case TypeCustom:
		return &CustomStrategy{}, nil
	case TypeGift:
		return &GiftStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown split type: %s", t)
	}
}

// CreateFromString creates a strategy from a string type (useful for API requests)
func (f *Factory) CreateFromString(t string) (Strategy, error) {
	return f.Create(Type(t))
}

var (
	ErrNoParticipants       = errors.New("at least one participant is required")
	ErrNegativeAmount       = errors.New("amounts cannot be negative")
	ErrDuplicateParticipant = errors.New("participant listed more than once")
	ErrUnknownParticipant   = errors.New("amount or gift references a participant outside the session")
	ErrMissingCustomAmount  = errors.New("custom amount required for all participants")
	ErrSplitMismatch        = errors.New("custom amounts must sum to the base amount")
	ErrTipMismatch          = errors.New("custom tip amounts must sum to the tip amount")
	ErrUnexpectedTip        = errors.New("tip strategy none does not allow a tip amount")
	ErrSelfGift             = errors.New("participants cannot gift their own share")
	ErrGiftChain            = errors.New("a share can only be gifted once and givers cannot be gifted")
)

// validateCommon checks the constraints every strategy shares.
func validateCommon(in Input) error {
	if len(in.Participants) == 0 {
		return ErrNoParticipants
	}
	if in.Base < 0 || in.Tip < 0 {
		return ErrNegativeAmount
	}

	seen := make(map[int64]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		if p.OrderTotal < 0 {
			return ErrNegativeAmount
		}
		if _, dup := seen[p.ID]; dup {
			return ErrDuplicateParticipant
		}
		seen[p.ID] = struct{}{}
	}

	switch in.TipStrategy {
	case TipNone:
		if in.Tip != 0 {
			return ErrUnexpectedTip
		}
	case TipEqual, TipProportional:
	case TipCustom:
		if err := validateAmounts(in.CustomTips, seen, in.Tip, ErrTipMismatch); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown tip strategy: %s", in.TipStrategy)
	}
	return nil
}

// validateAmounts checks a custom amount list: one non-negative entry per
// participant, no strangers, summing exactly to want.
func validateAmounts(amounts []CustomAmount, members map[int64]struct{}, want money.Cents, mismatch error) error {
	assigned := make(map[int64]struct{}, len(amounts))
	var sum money.Cents
	for _, a := range amounts {
		if _, ok := members[a.ParticipantID]; !ok {
			return ErrUnknownParticipant
		}
		if _, dup := assigned[a.ParticipantID]; dup {
			return ErrDuplicateParticipant
		}
		if a.Amount < 0 {
			return ErrNegativeAmount
		}
		assigned[a.ParticipantID] = struct{}{}
		sum += a.Amount
	}
	if len(assigned) != len(members) {
		return ErrMissingCustomAmount
	}
	if sum != want {
		return mismatch
	}
	return nil
}

// tipShares divides the tip according to the tip strategy, in participant
// join order. baseShares feeds the proportional strategy.
func tipShares(in Input, baseShares []money.Cents) ([]money.Cents, error) {
	n := len(in.Participants)

	switch in.TipStrategy {
	case TipNone:
		return make([]money.Cents, n), nil
	case TipEqual:
		return money.SplitEven(in.Tip, n)
	case TipProportional:
		return money.Allocate(in.Tip, baseShares)
	case TipCustom:
		byID := make(map[int64]money.Cents, len(in.CustomTips))
		for _, a := range in.CustomTips {
			byID[a.ParticipantID] = a.Amount
		}
		tips := make([]money.Cents, n)
		for i, p := range in.Participants {
			tips[i] = byID[p.ID]
		}
		return tips, nil
	default:
		return nil, fmt.Errorf("unknown tip strategy: %s", in.TipStrategy)
	}
}

// combine zips base and tip shares into the final share list.
func combine(in Input, baseShares []money.Cents) ([]Share, error) {
	tips, err := tipShares(in, baseShares)
	if err != nil {
		return nil, err
	}

	shares := make([]Share, len(in.Participants))
	for i, p := range in.Participants {
		shares[i] = Share{
			ParticipantID: p.ID,
			AmountDue:     baseShares[i] + tips[i],
		}
	}
	return shares, nil
}

// orderTotals extracts each participant's confirmed order total, in join order.
func orderTotals(in Input) []money.Cents {
	totals := make([]money.Cents, len(in.Participants))
	for i, p := range in.Participants {
		totals[i] = p.OrderTotal
	}
	return totals
}
