package settlement

import (
	"context"
	"time"

	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// Store is the persistence boundary for split sessions and contributions.
// Implementations must make CreateSplit atomic and the two CAS updates
// single atomic read-modify-writes.
type Store interface {
	// CreateSplit persists a split session and all its contributions in
	// one atomic unit. Returns the stored split with IDs assigned.
	CreateSplit(ctx context.Context, s *SplitSession, contributions []*Contribution) (*SplitSession, error)

	GetSplit(ctx context.Context, id int64) (*SplitSession, error)
	ContributionsBySplit(ctx context.Context, splitID int64) ([]*Contribution, error)
	GetContribution(ctx context.Context, splitID, participantID int64) (*Contribution, error)

	// NonTerminalSplitBySession returns the session's open or partially
	// settled split, or nil when every split is settled or cancelled.
	NonTerminalSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error)

	// LatestSplitBySession returns the most recently created split for
	// the session regardless of status, or nil when none exists.
	LatestSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error)

	// UpdateSplitStatus transitions the split to the target status only
	// if its current status is one of from. Reports whether it applied.
	UpdateSplitStatus(ctx context.Context, id int64, from []SplitStatus, to SplitStatus, cancelReason *string) (bool, error)

	// RecordOutcome transitions a contribution to the target status only
	// if its current status is one of from, setting the paid amount and
	// payment reference in the same write. Reports whether it applied.
	RecordOutcome(ctx context.Context, contributionID int64, from []ContributionStatus, to ContributionStatus, amountPaid money.Cents, paymentRef *string) (bool, error)

	// TouchSplit bumps the split's activity timestamp so the stale sweep
	// leaves actively-paying groups alone.
	TouchSplit(ctx context.Context, id int64, at time.Time) error

	// StaleSplits returns non-terminal splits with no activity since the
	// cutoff.
	StaleSplits(ctx context.Context, cutoff time.Time) ([]*SplitSession, error)

	// UnresolvedSplitCount counts the session's non-terminal splits.
	UnresolvedSplitCount(ctx context.Context, sessionID int64) (int, error)
}

// OrderSource is the slice of the order store the coordinator reads to
// price a settlement round.
type OrderSource interface {
	OrdersBySession(ctx context.Context, sessionID int64) ([]*order.Order, error)
}

// SessionSource is the slice of the session store the coordinator reads.
type SessionSource interface {
	GetSession(ctx context.Context, id int64) (*session.TableSession, error)
	ParticipantsBySession(ctx context.Context, sessionID int64) ([]*session.Participant, error)
}

// SessionCloser is invoked after the last contribution settles so the
// table session can close itself when nothing else is outstanding.
type SessionCloser interface {
	EndIfSettleable(ctx context.Context, sessionID int64)
}

// NopCloser ignores the settlement hook. Used in tests.
type NopCloser struct{}

// EndIfSettleable implements SessionCloser.
func (NopCloser) EndIfSettleable(context.Context, int64) {}
