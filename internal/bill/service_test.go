package bill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesplit/tablesplit/internal/config"
	"github.com/tablesplit/tablesplit/internal/fantasy"
	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/payment"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/internal/settlement"
	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/money"
)

func TestSummarize(t *testing.T) {
	ctx := context.Background()

	sessStore := session.NewMemoryStore()
	ordStore := order.NewMemoryStore(0)
	setStore := settlement.NewMemoryStore()
	locks := locker.New()

	sessSvc := session.NewService(sessStore, fantasy.NewAllocator(3), locks, ordStore, setStore, notify.NopNotifier{}, config.OrphanPolicyCreator)
	ordSvc := order.NewService(ordStore, sessStore, locks, notify.NopNotifier{})
	setSvc := settlement.NewService(setStore, ordStore, sessStore, locks, payment.TerminalCharger{}, notify.NopNotifier{}, settlement.NopCloser{})
	billSvc := NewService(sessStore, ordStore, setStore)

	sess, err := sessSvc.CheckIn(ctx, 9, false)
	require.NoError(t, err)
	alice, err := sessSvc.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	bob, err := sessSvc.Join(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	// No orders yet: summary is empty but well-formed.
	summary, err := billSvc.Summarize(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), summary.GrandTotal)
	assert.Nil(t, summary.Split)
	require.Len(t, summary.Participants, 2)

	ord, err := ordSvc.CreateCart(ctx, sess.ID, alice.ID, "")
	require.NoError(t, err)
	_, err = ordSvc.AddItem(ctx, ord.ID, alice.ID, 1, 1, 4200, nil, "")
	require.NoError(t, err)
	_, err = ordSvc.Confirm(ctx, ord.ID, alice.ID)
	require.NoError(t, err)

	ord2, err := ordSvc.CreateCart(ctx, sess.ID, bob.ID, "")
	require.NoError(t, err)
	_, err = ordSvc.AddItem(ctx, ord2.ID, bob.ID, 2, 1, 1800, nil, "")
	require.NoError(t, err)
	_, err = ordSvc.Confirm(ctx, ord2.ID, bob.ID)
	require.NoError(t, err)

	splitSession, _, err := setSvc.CreateSplitSession(ctx, settlement.CreateInput{
		TableSessionID: sess.ID,
		Strategy:       string(split.TypePerItem),
		TipStrategy:    string(split.TipNone),
	})
	require.NoError(t, err)

	_, err = setSvc.RecordPayment(ctx, splitSession.ID, alice.ID, settlement.OutcomeSucceeded, "ref-a")
	require.NoError(t, err)

	summary, err = billSvc.Summarize(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(6000), summary.GrandTotal)
	require.NotNil(t, summary.Split)
	assert.Equal(t, settlement.SplitPartiallySettled, summary.Split.Status)

	require.Len(t, summary.Participants, 2)
	aliceLine, bobLine := summary.Participants[0], summary.Participants[1]

	assert.Equal(t, alice.ID, aliceLine.Participant.ID)
	assert.Equal(t, money.Cents(4200), aliceLine.OrderTotal)
	require.NotNil(t, aliceLine.Contribution)
	assert.Equal(t, settlement.ContributionPaid, aliceLine.Contribution.Status)

	assert.Equal(t, bob.ID, bobLine.Participant.ID)
	assert.Equal(t, money.Cents(1800), bobLine.OrderTotal)
	require.NotNil(t, bobLine.Contribution)
	assert.Equal(t, settlement.ContributionPending, bobLine.Contribution.Status)
}

func TestSummarizeExcludesCancelledOrders(t *testing.T) {
	ctx := context.Background()

	sessStore := session.NewMemoryStore()
	ordStore := order.NewMemoryStore(0)
	setStore := settlement.NewMemoryStore()
	locks := locker.New()

	sessSvc := session.NewService(sessStore, fantasy.NewAllocator(3), locks, ordStore, setStore, notify.NopNotifier{}, config.OrphanPolicyCreator)
	ordSvc := order.NewService(ordStore, sessStore, locks, notify.NopNotifier{})
	billSvc := NewService(sessStore, ordStore, setStore)

	sess, err := sessSvc.CheckIn(ctx, 2, false)
	require.NoError(t, err)
	p, err := sessSvc.Join(ctx, sess.ID, nil, "")
	require.NoError(t, err)

	ord, err := ordSvc.CreateCart(ctx, sess.ID, p.ID, "")
	require.NoError(t, err)
	_, err = ordSvc.AddItem(ctx, ord.ID, p.ID, 1, 1, 999, nil, "")
	require.NoError(t, err)
	_, err = ordSvc.Cancel(ctx, ord.ID, "")
	require.NoError(t, err)

	summary, err := billSvc.Summarize(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(0), summary.GrandTotal)
	require.Len(t, summary.Participants, 1)
	assert.Equal(t, money.Cents(0), summary.Participants[0].OrderTotal)
	// The cancelled order still shows in the participant's history.
	assert.Len(t, summary.Participants[0].Orders, 1)
}

func TestSummarizeUnknownSession(t *testing.T) {
	billSvc := NewService(session.NewMemoryStore(), order.NewMemoryStore(0), settlement.NewMemoryStore())

	_, err := billSvc.Summarize(context.Background(), 404)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
