package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesplit/tablesplit/internal/config"
	"github.com/tablesplit/tablesplit/internal/fantasy"
	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/payment"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// countingNotifier tallies published events by type.
type countingNotifier struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingNotifier() *countingNotifier {
	return &countingNotifier{counts: make(map[string]int)}
}

func (n *countingNotifier) Publish(e notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[e.Type]++
}

func (n *countingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[eventType]
}

// scriptedCharger returns canned results in order, then succeeds.
type scriptedCharger struct {
	mu      sync.Mutex
	results []payment.Result
	errs    []error
}

func (c *scriptedCharger) Charge(ctx context.Context, participantID int64, amount money.Cents, method string) (payment.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.results) == 0 {
		return payment.Result{Succeeded: true, Reference: "ref-ok"}, nil
	}
	result, err := c.results[0], c.errs[0]
	c.results, c.errs = c.results[1:], c.errs[1:]
	return result, err
}

func (c *scriptedCharger) script(result payment.Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	c.errs = append(c.errs, err)
}

type settlementFixture struct {
	service    *Service
	store      *MemoryStore
	sessions   *session.Service
	sessStore  *session.MemoryStore
	orders     *order.Service
	ordStore   *order.MemoryStore
	charger    *scriptedCharger
	notifier   *countingNotifier
	session    *session.TableSession
	alice, bob *session.Participant
}

func newSettlementFixture(t *testing.T) *settlementFixture {
	t.Helper()
	ctx := context.Background()

	sessStore := session.NewMemoryStore()
	ordStore := order.NewMemoryStore(0)
	store := NewMemoryStore()
	locks := locker.New()
	notifier := newCountingNotifier()
	charger := &scriptedCharger{}

	sessSvc := session.NewService(sessStore, fantasy.NewAllocator(7), locks, ordStore, store, notify.NopNotifier{}, config.OrphanPolicyCreator)
	ordSvc := order.NewService(ordStore, sessStore, locks, notify.NopNotifier{})
	svc := NewService(store, ordStore, sessStore, locks, charger, notifier, sessSvc)

	sess, err := sessSvc.CheckIn(ctx, 4, false)
	require.NoError(t, err)
	alice, err := sessSvc.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	bob, err := sessSvc.Join(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	return &settlementFixture{
		service:   svc,
		store:     store,
		sessions:  sessSvc,
		sessStore: sessStore,
		orders:    ordSvc,
		ordStore:  ordStore,
		charger:   charger,
		notifier:  notifier,
		session:   sess,
		alice:     alice,
		bob:       bob,
	}
}

// confirmOrder places and confirms an order worth total for the owner.
func (fx *settlementFixture) confirmOrder(t *testing.T, owner *session.Participant, total money.Cents) *order.Order {
	t.Helper()
	ctx := context.Background()

	ord, err := fx.orders.CreateCart(ctx, fx.session.ID, owner.ID, "")
	require.NoError(t, err)
	_, err = fx.orders.AddItem(ctx, ord.ID, owner.ID, 1, 1, total, nil, "")
	require.NoError(t, err)
	ord, err = fx.orders.Confirm(ctx, ord.ID, owner.ID)
	require.NoError(t, err)
	return ord
}

// deliverOrder walks an order through the kitchen to delivered.
func (fx *settlementFixture) deliverOrder(t *testing.T, ord *order.Order) {
	t.Helper()
	ctx := context.Background()
	for _, status := range []order.Status{order.StatusPreparing, order.StatusReady, order.StatusDelivered} {
		_, err := fx.orders.UpdateStatus(ctx, ord.ID, status)
		require.NoError(t, err)
	}
}

func TestCreateSplitSessionPerItem(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 4200)
	fx.confirmOrder(t, fx.bob, 1800)

	splitSession, contributions, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypePerItem),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)
	assert.Equal(t, SplitOpen, splitSession.Status)
	assert.Equal(t, money.Cents(6000), splitSession.BaseAmount)

	require.Len(t, contributions, 2)
	assert.Equal(t, fx.alice.ID, contributions[0].ParticipantID)
	assert.Equal(t, money.Cents(4200), contributions[0].AmountDue)
	assert.Equal(t, fx.bob.ID, contributions[1].ParticipantID)
	assert.Equal(t, money.Cents(1800), contributions[1].AmountDue)

	// Only one unresolved split per session.
	_, _, err = fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	assert.ErrorIs(t, err, ErrSplitAlreadyOpen)
}

func TestCreateSplitSessionNothingToSettle(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	// A pending cart is not billable.
	_, err := fx.orders.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)

	_, _, err = fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	assert.ErrorIs(t, err, ErrNothingToSettle)
}

func TestRecordPaymentIdempotent(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 5000)
	fx.confirmOrder(t, fx.bob, 5000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	first, err := fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, ContributionPaid, first.Status)
	assert.Equal(t, money.Cents(5000), first.AmountPaid)

	// Webhook retry: same outcome again is a silent no-op.
	again, err := fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, ContributionPaid, again.Status)
	assert.Equal(t, 1, fx.notifier.count(notify.EventPaymentRecorded))

	// A late failure never demotes a recorded payment.
	late, err := fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeFailed, "")
	require.NoError(t, err)
	assert.Equal(t, ContributionPaid, late.Status)

	stored, err := fx.store.GetSplit(ctx, splitSession.ID)
	require.NoError(t, err)
	assert.Equal(t, SplitPartiallySettled, stored.Status)
}

func TestFailedPaymentRetry(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 3000)
	fx.confirmOrder(t, fx.bob, 3000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref-a")
	require.NoError(t, err)

	failed, err := fx.service.RecordPayment(ctx, splitSession.ID, fx.bob.ID, OutcomeFailed, "")
	require.NoError(t, err)
	assert.Equal(t, ContributionFailed, failed.Status)
	assert.Equal(t, money.Cents(3000), failed.AmountDue)

	stored, err := fx.store.GetSplit(ctx, splitSession.ID)
	require.NoError(t, err)
	assert.Equal(t, SplitPartiallySettled, stored.Status)

	retried, err := fx.service.RecordPayment(ctx, splitSession.ID, fx.bob.ID, OutcomeSucceeded, "ref-b")
	require.NoError(t, err)
	assert.Equal(t, ContributionPaid, retried.Status)

	stored, err = fx.store.GetSplit(ctx, splitSession.ID)
	require.NoError(t, err)
	assert.Equal(t, SplitSettled, stored.Status)
}

func TestSettledExactlyOnceUnderConcurrency(t *testing.T) {
	for round := 0; round < 25; round++ {
		fx := newSettlementFixture(t)
		ctx := context.Background()

		fx.confirmOrder(t, fx.alice, 2000)
		fx.confirmOrder(t, fx.bob, 2000)

		splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
			TableSessionID: fx.session.ID,
			Strategy:       string(split.TypeEqual),
			TipStrategy:    string(split.TipNone),
		})
		require.NoError(t, err)

		// The last two payments race; each may also see duplicate
		// callbacks. The split must settle exactly once.
		var wg sync.WaitGroup
		for _, pid := range []int64{fx.alice.ID, fx.bob.ID, fx.alice.ID, fx.bob.ID} {
			wg.Add(1)
			go func(pid int64) {
				defer wg.Done()
				_, err := fx.service.RecordPayment(ctx, splitSession.ID, pid, OutcomeSucceeded, "ref")
				assert.NoError(t, err)
			}(pid)
		}
		wg.Wait()

		stored, err := fx.store.GetSplit(ctx, splitSession.ID)
		require.NoError(t, err)
		assert.Equal(t, SplitSettled, stored.Status)
		assert.Equal(t, 1, fx.notifier.count(notify.EventSplitSettled))
		assert.Equal(t, 2, fx.notifier.count(notify.EventPaymentRecorded))
	}
}

func TestSettlementClosesSession(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	a := fx.confirmOrder(t, fx.alice, 2500)
	b := fx.confirmOrder(t, fx.bob, 2500)
	fx.deliverOrder(t, a)
	fx.deliverOrder(t, b)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref-a")
	require.NoError(t, err)

	got, err := fx.sessStore.GetSession(ctx, fx.session.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive, "session must stay open until everyone has paid")

	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.bob.ID, OutcomeSucceeded, "ref-b")
	require.NoError(t, err)

	got, err = fx.sessStore.GetSession(ctx, fx.session.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive, "last payment closes the bill")
}

func TestGiftWaivesRecipient(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 3500)
	fx.confirmOrder(t, fx.bob, 2500)

	splitSession, contributions, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeGift),
		TipStrategy:    string(split.TipNone),
		Gifts:          []split.Gift{{GiverID: fx.alice.ID, RecipientID: fx.bob.ID}},
	})
	require.NoError(t, err)
	require.Len(t, contributions, 2)

	giver, recipient := contributions[0], contributions[1]
	assert.Equal(t, money.Cents(6000), giver.AmountDue)
	assert.Equal(t, ContributionWaived, recipient.Status)
	assert.Equal(t, money.Cents(0), recipient.AmountDue)
	require.NotNil(t, recipient.PaidByParticipantID)
	assert.Equal(t, fx.alice.ID, *recipient.PaidByParticipantID)

	// The recipient cannot pay a waived contribution.
	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.bob.ID, OutcomeSucceeded, "ref")
	assert.ErrorIs(t, err, ErrContributionWaived)

	// The giver's single payment settles the whole split.
	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref")
	require.NoError(t, err)

	stored, err := fx.store.GetSplit(ctx, splitSession.ID)
	require.NoError(t, err)
	assert.Equal(t, SplitSettled, stored.Status)
}

func TestCancelSplitSession(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 4000)
	fx.confirmOrder(t, fx.bob, 4000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	cancelled, err := fx.service.CancelSplitSession(ctx, splitSession.ID, "switching to per item")
	require.NoError(t, err)
	assert.Equal(t, SplitCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)

	_, err = fx.service.CancelSplitSession(ctx, splitSession.ID, "again")
	assert.ErrorIs(t, err, ErrSplitTerminal)

	// A new round with a different strategy is now possible.
	_, _, err = fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypePerItem),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)
}

func TestCancelBlockedByPaidContribution(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 4000)
	fx.confirmOrder(t, fx.bob, 4000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	_, err = fx.service.RecordPayment(ctx, splitSession.ID, fx.alice.ID, OutcomeSucceeded, "ref")
	require.NoError(t, err)

	_, err = fx.service.CancelSplitSession(ctx, splitSession.ID, "changed our minds")
	assert.ErrorIs(t, err, ErrHasPaidContributions)
}

func TestPayThroughTerminal(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 2000)
	fx.confirmOrder(t, fx.bob, 2000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	// Declined card first, then success on retry.
	fx.charger.script(payment.Result{Succeeded: false, Reference: "ref-declined"}, nil)

	declined, err := fx.service.Pay(ctx, splitSession.ID, fx.alice.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, ContributionFailed, declined.Status)

	paid, err := fx.service.Pay(ctx, splitSession.ID, fx.alice.ID, "card")
	require.NoError(t, err)
	assert.Equal(t, ContributionPaid, paid.Status)
	assert.Equal(t, money.Cents(2000), paid.AmountPaid)
}

func TestPayTerminalUnreachable(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 2000)
	fx.confirmOrder(t, fx.bob, 2000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	fx.charger.script(payment.Result{}, errors.New("terminal offline"))

	_, err = fx.service.Pay(ctx, splitSession.ID, fx.alice.ID, "card")
	require.Error(t, err)

	// The obligation is back to retryable, not stuck processing.
	c, err := fx.store.GetContribution(ctx, splitSession.ID, fx.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, ContributionFailed, c.Status)
}

func TestCancelStale(t *testing.T) {
	fx := newSettlementFixture(t)
	ctx := context.Background()

	fx.confirmOrder(t, fx.alice, 4000)
	fx.confirmOrder(t, fx.bob, 4000)

	splitSession, _, err := fx.service.CreateSplitSession(ctx, CreateInput{
		TableSessionID: fx.session.ID,
		Strategy:       string(split.TypeEqual),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	// Nothing is stale inside the window.
	cancelled, err := fx.service.CancelStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, cancelled)

	// Age the split past the window.
	require.NoError(t, fx.store.TouchSplit(ctx, splitSession.ID, time.Now().UTC().Add(-2*time.Hour)))

	cancelled, err = fx.service.CancelStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	stored, err := fx.store.GetSplit(ctx, splitSession.ID)
	require.NoError(t, err)
	assert.Equal(t, SplitCancelled, stored.Status)

	// The table is free to end or re-split.
	count, err := fx.store.UnresolvedSplitCount(ctx, fx.session.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
