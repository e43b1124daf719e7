package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/pkg/money"
)

type orderFixture struct {
	service  *Service
	store    *MemoryStore
	sessions *session.MemoryStore
	session  *session.TableSession
	alice    *session.Participant
	bob      *session.Participant
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	ctx := context.Background()

	sessions := session.NewMemoryStore()
	sess, err := sessions.CreateSession(ctx, 7)
	require.NoError(t, err)
	alice, err := sessions.CreateParticipant(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	bob, err := sessions.CreateParticipant(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	store := NewMemoryStore(0)
	service := NewService(store, sessions, locker.New(), notify.NopNotifier{})

	return &orderFixture{
		service:  service,
		store:    store,
		sessions: sessions,
		session:  sess,
		alice:    alice,
		bob:      bob,
	}
}

func TestCreateCart(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "no onions on anything")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, ord.Status)
	assert.Equal(t, fx.alice.ID, ord.OwnerParticipantID)
	assert.Equal(t, money.Cents(0), ord.TotalAmount)
}

func TestCreateCartSessionEnded(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	_, err := fx.service.CreateCart(ctx, 999, fx.alice.ID, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, fx.sessions.EndSession(ctx, fx.session.ID, fx.session.StartedAt))
	_, err = fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestAddItemRecomputesTotals(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)

	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 2, 1200, nil, "")
	require.NoError(t, err)
	item, err := fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 12, 1, 900, []Customization{{Name: "extra cheese", Surcharge: 150}}, "")
	require.NoError(t, err)
	assert.Equal(t, money.Cents(1050), item.TotalPrice)

	ord, err = fx.service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(3450), ord.Subtotal)
	assert.Equal(t, money.Cents(3450), ord.TotalAmount)
}

func TestAddItemValidation(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)

	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 0, 1200, nil, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 1, -5, nil, "")
	assert.ErrorIs(t, err, ErrNegativePrice)

	_, err = fx.service.AddItem(ctx, ord.ID, fx.bob.ID, 11, 1, 1200, nil, "")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdateQuantityZeroRemovesItem(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)
	item, err := fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 2, 1200, nil, "")
	require.NoError(t, err)

	require.NoError(t, fx.service.UpdateQuantity(ctx, item.ID, fx.alice.ID, 3))
	ord, err = fx.service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(3600), ord.TotalAmount)

	require.NoError(t, fx.service.UpdateQuantity(ctx, item.ID, fx.alice.ID, 0))
	ord, err = fx.service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Empty(t, ord.Items)
	assert.Equal(t, money.Cents(0), ord.TotalAmount)
}

func TestConfirmEmptyCart(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)

	_, err = fx.service.Confirm(ctx, ord.ID, fx.alice.ID)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestConfirmFreezesCart(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)
	item, err := fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 1, 1200, nil, "")
	require.NoError(t, err)

	ord, err = fx.service.Confirm(ctx, ord.ID, fx.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, ord.Status)

	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 12, 1, 900, nil, "")
	assert.ErrorIs(t, err, ErrOrderNotEditable)
	err = fx.service.UpdateQuantity(ctx, item.ID, fx.alice.ID, 5)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
}

func TestTransferOwnership(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)
	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 2, 1200, nil, "")
	require.NoError(t, err)
	before, err := fx.service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)

	got, err := fx.service.TransferOwnership(ctx, ord.ID, fx.alice.ID, fx.bob.ID, fx.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.bob.ID, got.OwnerParticipantID)

	after, err := fx.service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.TotalAmount, after.TotalAmount)
	assert.Len(t, after.Items, len(before.Items))
}

func TestTransferOwnershipRules(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.bob.ID, "")
	require.NoError(t, err)

	// Bob is not the creator, so he cannot move Alice's order. Alice joined
	// first and may transfer on anyone's behalf.
	_, err = fx.service.TransferOwnership(ctx, ord.ID, fx.bob.ID, fx.alice.ID, fx.bob.ID)
	require.NoError(t, err)

	_, err = fx.service.TransferOwnership(ctx, ord.ID, fx.alice.ID, fx.bob.ID, fx.bob.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = fx.service.TransferOwnership(ctx, ord.ID, fx.alice.ID, fx.bob.ID, fx.alice.ID)
	require.NoError(t, err)
}

func TestTransferDeliveredOrder(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord := confirmedOrder(t, fx)
	_, err := fx.service.UpdateStatus(ctx, ord.ID, StatusPreparing)
	require.NoError(t, err)
	_, err = fx.service.UpdateStatus(ctx, ord.ID, StatusReady)
	require.NoError(t, err)
	_, err = fx.service.UpdateStatus(ctx, ord.ID, StatusDelivered)
	require.NoError(t, err)

	_, err = fx.service.TransferOwnership(ctx, ord.ID, fx.alice.ID, fx.bob.ID, fx.alice.ID)
	assert.ErrorIs(t, err, ErrOrderNotTransferable)
}

func TestKitchenTransitions(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	ord := confirmedOrder(t, fx)

	// Skipping preparing is not allowed.
	_, err := fx.service.UpdateStatus(ctx, ord.ID, StatusReady)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := fx.service.UpdateStatus(ctx, ord.ID, StatusPreparing)
	require.NoError(t, err)
	assert.Equal(t, StatusPreparing, got.Status)

	got, err = fx.service.UpdateStatus(ctx, ord.ID, StatusReady)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)

	got, err = fx.service.UpdateStatus(ctx, ord.ID, StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)

	_, err = fx.service.UpdateStatus(ctx, ord.ID, StatusPreparing)
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestCancelReasonRules(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	pending, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)

	got, err := fx.service.Cancel(ctx, pending.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Nil(t, got.CancelReason)

	confirmed := confirmedOrder(t, fx)
	_, err = fx.service.Cancel(ctx, confirmed.ID, "  ")
	assert.ErrorIs(t, err, ErrCancelReasonRequired)

	got, err = fx.service.Cancel(ctx, confirmed.ID, "kitchen out of stock")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "kitchen out of stock", *got.CancelReason)

	_, err = fx.service.Cancel(ctx, confirmed.ID, "again")
	assert.ErrorIs(t, err, ErrOrderTerminal)
}

func TestTaxAppliedToTotals(t *testing.T) {
	ctx := context.Background()

	sessions := session.NewMemoryStore()
	sess, err := sessions.CreateSession(ctx, 3)
	require.NoError(t, err)
	owner, err := sessions.CreateParticipant(ctx, sess.ID, nil, "Silent Owl")
	require.NoError(t, err)

	// 10% tax.
	store := NewMemoryStore(1000)
	service := NewService(store, sessions, locker.New(), notify.NopNotifier{})

	ord, err := service.CreateCart(ctx, sess.ID, owner.ID, "")
	require.NoError(t, err)
	_, err = service.AddItem(ctx, ord.ID, owner.ID, 11, 1, 2500, nil, "")
	require.NoError(t, err)

	ord, err = service.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Cents(2500), ord.Subtotal)
	assert.Equal(t, money.Cents(250), ord.TaxAmount)
	assert.Equal(t, money.Cents(2750), ord.TotalAmount)
}

func confirmedOrder(t *testing.T, fx *orderFixture) *Order {
	t.Helper()
	ctx := context.Background()

	ord, err := fx.service.CreateCart(ctx, fx.session.ID, fx.alice.ID, "")
	require.NoError(t, err)
	_, err = fx.service.AddItem(ctx, ord.ID, fx.alice.ID, 11, 1, 1500, nil, "")
	require.NoError(t, err)
	ord, err = fx.service.Confirm(ctx, ord.ID, fx.alice.ID)
	require.NoError(t, err)
	return ord
}
