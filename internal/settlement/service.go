package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/payment"
	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// Common errors
var (
	ErrSplitNotFound          = errors.New("split session not found")
	ErrContributionNotFound   = errors.New("contribution not found")
	ErrSessionNotFound        = errors.New("table session not found")
	ErrSessionEnded           = errors.New("table session has ended")
	ErrSplitAlreadyOpen       = errors.New("session already has an unresolved split session")
	ErrNothingToSettle        = errors.New("no billable orders to settle")
	ErrSplitTerminal          = errors.New("split session is already settled or cancelled")
	ErrContributionWaived     = errors.New("contribution is covered by another participant")
	ErrContributionNotPayable = errors.New("contribution is not awaiting payment")
	ErrHasPaidContributions   = errors.New("split session already has paid contributions")
)

// billable is the set of order statuses that count toward the bill.
var billable = map[order.Status]bool{
	order.StatusConfirmed: true,
	order.StatusPreparing: true,
	order.StatusReady:     true,
	order.StatusDelivered: true,
}

// Outcome is the result of a payment attempt reported to RecordPayment.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// CreateInput carries the group's settlement choice.
type CreateInput struct {
	TableSessionID int64
	Strategy       string
	TipAmount      money.Cents
	TipStrategy    string
	Custom         []split.CustomAmount
	CustomTips     []split.CustomAmount
	Gifts          []split.Gift
}

// Service is the settlement coordinator: it turns the group's choice of
// strategy into a contribution ledger and tracks payments against it
// until the bill is settled. All split mutations for one table session
// are serialized through the session lock; only the charge against the
// payment terminal happens outside it.
type Service struct {
	store    Store
	orders   OrderSource
	sessions SessionSource
	locks    *locker.SessionLocker
	factory  *split.Factory
	charger  payment.Charger
	notifier notify.Notifier
	closer   SessionCloser
}

// NewService creates a settlement service with dependencies injected.
func NewService(
	store Store,
	orders OrderSource,
	sessions SessionSource,
	locks *locker.SessionLocker,
	charger payment.Charger,
	notifier notify.Notifier,
	closer SessionCloser,
) *Service {
	return &Service{
		store:    store,
		orders:   orders,
		sessions: sessions,
		locks:    locks,
		factory:  split.NewFactory(),
		charger:  charger,
		notifier: notifier,
		closer:   closer,
	}
}

// CreateSplitSession computes each participant's obligation and persists
// the split with its contributions atomically. Only one unresolved split
// may exist per table session; cancel it first to change strategy.
func (s *Service) CreateSplitSession(ctx context.Context, in CreateInput) (*SplitSession, []*Contribution, error) {
	release, err := s.locks.Acquire(ctx, in.TableSessionID)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	sess, err := s.sessions.GetSession(ctx, in.TableSessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		return nil, nil, ErrSessionEnded
	}

	existing, err := s.store.NonTerminalSplitBySession(ctx, in.TableSessionID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrSplitAlreadyOpen
	}

	participants, totals, base, err := s.billableTotals(ctx, in.TableSessionID)
	if err != nil {
		return nil, nil, err
	}
	if base == 0 {
		return nil, nil, ErrNothingToSettle
	}

	strategy, err := s.factory.CreateFromString(in.Strategy)
	if err != nil {
		return nil, nil, err
	}

	splitIn := split.Input{
		Participants: make([]split.Participant, len(participants)),
		Base:         base,
		Tip:          in.TipAmount,
		TipStrategy:  split.TipStrategy(in.TipStrategy),
		Custom:       in.Custom,
		CustomTips:   in.CustomTips,
		Gifts:        in.Gifts,
	}
	for i, p := range participants {
		splitIn.Participants[i] = split.Participant{ID: p, OrderTotal: totals[p]}
	}

	shares, err := strategy.Calculate(splitIn)
	if err != nil {
		return nil, nil, err
	}

	var due money.Cents
	for _, sh := range shares {
		due += sh.AmountDue
	}
	if due != base+in.TipAmount {
		return nil, nil, fmt.Errorf("split does not reconcile: shares sum to %s, bill is %s", due, base+in.TipAmount)
	}

	now := time.Now().UTC()
	splitSession := &SplitSession{
		TableSessionID: in.TableSessionID,
		Strategy:       strategy.Type(),
		BaseAmount:     base,
		TipAmount:      in.TipAmount,
		TipStrategy:    split.TipStrategy(in.TipStrategy),
		Status:         SplitOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	contributions := make([]*Contribution, len(shares))
	for i, sh := range shares {
		c := &Contribution{
			ParticipantID: sh.ParticipantID,
			AmountDue:     sh.AmountDue,
			Status:        ContributionPending,
			UpdatedAt:     now,
		}
		if sh.Waived {
			c.Status = ContributionWaived
			c.PaidByParticipantID = sh.PaidBy
		}
		contributions[i] = c
	}

	splitSession, err = s.store.CreateSplit(ctx, splitSession, contributions)
	if err != nil {
		return nil, nil, err
	}

	s.notifier.Publish(notify.Event{
		Type:      notify.EventSplitCreated,
		SessionID: in.TableSessionID,
		Data:      splitSession,
	})
	return splitSession, contributions, nil
}

// GetSplit retrieves a split session with its contributions.
func (s *Service) GetSplit(ctx context.Context, id int64) (*SplitSession, []*Contribution, error) {
	splitSession, err := s.store.GetSplit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if splitSession == nil {
		return nil, nil, ErrSplitNotFound
	}
	contributions, err := s.store.ContributionsBySplit(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return splitSession, contributions, nil
}

// RecordPayment applies a payment outcome to one contribution and
// re-evaluates the split. A repeated success for an already-paid
// contribution is an idempotent no-op, which tolerates payment-provider
// webhook retries; a failure leaves the obligation retryable. When the
// last contribution resolves the split flips to settled exactly once
// and the session is asked to close itself.
func (s *Service) RecordPayment(ctx context.Context, splitID, participantID int64, outcome Outcome, paymentRef string) (*Contribution, error) {
	contribution, sessionID, settled, err := s.recordLocked(ctx, splitID, participantID, outcome, paymentRef)
	if err != nil {
		return nil, err
	}
	if settled {
		// Outside the lock: closing the session re-acquires it.
		s.closer.EndIfSettleable(ctx, sessionID)
	}
	return contribution, nil
}

func (s *Service) recordLocked(ctx context.Context, splitID, participantID int64, outcome Outcome, paymentRef string) (*Contribution, int64, bool, error) {
	splitSession, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, 0, false, err
	}
	if splitSession == nil {
		return nil, 0, false, ErrSplitNotFound
	}
	sessionID := splitSession.TableSessionID

	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, 0, false, err
	}
	defer release()

	contribution, err := s.store.GetContribution(ctx, splitID, participantID)
	if err != nil {
		return nil, 0, false, err
	}
	if contribution == nil {
		return nil, 0, false, ErrContributionNotFound
	}

	// Duplicate callbacks for a paid contribution succeed silently; a
	// late failure never demotes a recorded payment.
	if contribution.Status == ContributionPaid {
		return contribution, sessionID, false, nil
	}
	if contribution.Status == ContributionWaived {
		return nil, 0, false, ErrContributionWaived
	}

	splitSession, err = s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, 0, false, err
	}
	if splitSession.Status.Terminal() {
		return nil, 0, false, ErrSplitTerminal
	}

	var ref *string
	if paymentRef != "" {
		ref = &paymentRef
	}

	switch outcome {
	case OutcomeSucceeded:
		applied, err := s.store.RecordOutcome(ctx, contribution.ID,
			[]ContributionStatus{ContributionPending, ContributionProcessing, ContributionFailed},
			ContributionPaid, contribution.AmountDue, ref)
		if err != nil {
			return nil, 0, false, err
		}
		if !applied {
			return nil, 0, false, ErrContributionNotPayable
		}
		contribution.Status = ContributionPaid
		contribution.AmountPaid = contribution.AmountDue
		contribution.PaymentRef = ref
	case OutcomeFailed:
		applied, err := s.store.RecordOutcome(ctx, contribution.ID,
			[]ContributionStatus{ContributionPending, ContributionProcessing},
			ContributionFailed, 0, ref)
		if err != nil {
			return nil, 0, false, err
		}
		if !applied {
			// Already failed; retrying is the caller's move.
			return contribution, sessionID, false, nil
		}
		contribution.Status = ContributionFailed
	default:
		return nil, 0, false, fmt.Errorf("unknown payment outcome: %s", outcome)
	}

	s.notifier.Publish(notify.Event{
		Type:      notify.EventPaymentRecorded,
		SessionID: sessionID,
		Data:      contribution,
	})

	settled, err := s.reevaluate(ctx, splitSession)
	if err != nil {
		return nil, 0, false, err
	}
	return contribution, sessionID, settled, nil
}

// reevaluate recomputes the split's aggregate status from its
// contributions. Both transitions are compare-and-set so the flip to
// settled happens exactly once no matter how payments interleave.
func (s *Service) reevaluate(ctx context.Context, splitSession *SplitSession) (bool, error) {
	contributions, err := s.store.ContributionsBySplit(ctx, splitSession.ID)
	if err != nil {
		return false, err
	}

	allResolved := true
	anyResolved := false
	for _, c := range contributions {
		if c.Status.Resolved() {
			anyResolved = true
		} else {
			allResolved = false
		}
	}

	if err := s.store.TouchSplit(ctx, splitSession.ID, time.Now().UTC()); err != nil {
		return false, err
	}

	if allResolved {
		applied, err := s.store.UpdateSplitStatus(ctx, splitSession.ID,
			[]SplitStatus{SplitOpen, SplitPartiallySettled}, SplitSettled, nil)
		if err != nil {
			return false, err
		}
		if applied {
			s.notifier.Publish(notify.Event{
				Type:      notify.EventSplitSettled,
				SessionID: splitSession.TableSessionID,
				Data:      splitSession.ID,
			})
		}
		return applied, nil
	}

	if anyResolved {
		if _, err := s.store.UpdateSplitStatus(ctx, splitSession.ID,
			[]SplitStatus{SplitOpen}, SplitPartiallySettled, nil); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Pay charges a participant's contribution through the payment terminal
// and records the outcome. The charge itself runs outside the session
// lock so a slow terminal never stalls the rest of the table.
func (s *Service) Pay(ctx context.Context, splitID, participantID int64, method string) (*Contribution, error) {
	contribution, err := s.store.GetContribution(ctx, splitID, participantID)
	if err != nil {
		return nil, err
	}
	if contribution == nil {
		return nil, ErrContributionNotFound
	}
	if contribution.Status == ContributionPaid {
		return contribution, nil
	}
	if contribution.Status == ContributionWaived {
		return nil, ErrContributionWaived
	}

	applied, err := s.store.RecordOutcome(ctx, contribution.ID,
		[]ContributionStatus{ContributionPending, ContributionFailed},
		ContributionProcessing, 0, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrContributionNotPayable
	}

	result, err := s.charger.Charge(ctx, participantID, contribution.AmountDue, method)
	if err != nil {
		// The terminal never answered; release the obligation for retry.
		if _, recErr := s.RecordPayment(ctx, splitID, participantID, OutcomeFailed, ""); recErr != nil {
			return nil, recErr
		}
		return nil, err
	}

	outcome := OutcomeFailed
	if result.Succeeded {
		outcome = OutcomeSucceeded
	}
	return s.RecordPayment(ctx, splitID, participantID, outcome, result.Reference)
}

// CancelSplitSession abandons a split so the group can pick a different
// strategy. Only valid while nobody has paid.
func (s *Service) CancelSplitSession(ctx context.Context, splitID int64, reason string) (*SplitSession, error) {
	splitSession, err := s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, err
	}
	if splitSession == nil {
		return nil, ErrSplitNotFound
	}

	release, err := s.locks.Acquire(ctx, splitSession.TableSessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	splitSession, err = s.store.GetSplit(ctx, splitID)
	if err != nil {
		return nil, err
	}
	if splitSession.Status.Terminal() {
		return nil, ErrSplitTerminal
	}

	contributions, err := s.store.ContributionsBySplit(ctx, splitID)
	if err != nil {
		return nil, err
	}
	for _, c := range contributions {
		if c.Status == ContributionPaid {
			return nil, ErrHasPaidContributions
		}
	}

	return s.cancelLocked(ctx, splitSession, reason)
}

// CancelStale cancels splits abandoned beyond the inactivity window. It
// re-checks each split under its session lock so a payment arriving at
// the same moment wins the race cleanly on one side or the other.
func (s *Service) CancelStale(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	stale, err := s.store.StaleSplits(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, candidate := range stale {
		n, err := s.cancelIfStillStale(ctx, candidate.ID, cutoff)
		if err != nil {
			return cancelled, err
		}
		cancelled += n
	}
	return cancelled, nil
}

func (s *Service) cancelIfStillStale(ctx context.Context, splitID int64, cutoff time.Time) (int, error) {
	splitSession, err := s.store.GetSplit(ctx, splitID)
	if err != nil || splitSession == nil {
		return 0, err
	}

	release, err := s.locks.Acquire(ctx, splitSession.TableSessionID)
	if err != nil {
		return 0, err
	}
	defer release()

	splitSession, err = s.store.GetSplit(ctx, splitID)
	if err != nil {
		return 0, err
	}
	if splitSession.Status.Terminal() || splitSession.UpdatedAt.After(cutoff) {
		return 0, nil
	}

	if _, err := s.cancelLocked(ctx, splitSession, "settlement timed out"); err != nil {
		return 0, err
	}
	return 1, nil
}

// cancelLocked flips a non-terminal split to cancelled. Callers hold the
// session lock.
func (s *Service) cancelLocked(ctx context.Context, splitSession *SplitSession, reason string) (*SplitSession, error) {
	reason = strings.TrimSpace(reason)
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	applied, err := s.store.UpdateSplitStatus(ctx, splitSession.ID,
		[]SplitStatus{SplitOpen, SplitPartiallySettled}, SplitCancelled, reasonPtr)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrSplitTerminal
	}
	splitSession.Status = SplitCancelled
	splitSession.CancelReason = reasonPtr

	s.notifier.Publish(notify.Event{
		Type:      notify.EventSplitCancelled,
		SessionID: splitSession.TableSessionID,
		Data:      splitSession,
	})
	return splitSession, nil
}

// billableTotals sums confirmed-or-later orders per participant, in join
// order. Participants who have left stay in the split when they still
// own billable orders.
func (s *Service) billableTotals(ctx context.Context, sessionID int64) ([]int64, map[int64]money.Cents, money.Cents, error) {
	orders, err := s.orders.OrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, 0, err
	}

	totals := make(map[int64]money.Cents)
	var base money.Cents
	for _, o := range orders {
		if !billable[o.Status] {
			continue
		}
		totals[o.OwnerParticipantID] += o.TotalAmount
		base += o.TotalAmount
	}

	all, err := s.sessions.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, 0, err
	}

	ids := make([]int64, 0, len(all))
	for _, p := range all {
		if p.Active() || totals[p.ID] > 0 {
			ids = append(ids, p.ID)
		}
	}
	return ids, totals, base, nil
}
