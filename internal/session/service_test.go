package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesplit/tablesplit/internal/config"
	"github.com/tablesplit/tablesplit/internal/fantasy"
	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/session"
)

// stubSettlements reports a fixed number of unresolved split sessions.
type stubSettlements struct {
	unresolved int
}

func (s stubSettlements) UnresolvedSplitCount(ctx context.Context, sessionID int64) (int, error) {
	return s.unresolved, nil
}

type sessionFixture struct {
	service  *session.Service
	store    *session.MemoryStore
	orders   *order.MemoryStore
	orderSvc *order.Service
}

func newSessionFixture(t *testing.T, policy config.OrphanOrderPolicy, unresolved int) *sessionFixture {
	t.Helper()

	store := session.NewMemoryStore()
	orders := order.NewMemoryStore(0)
	locks := locker.New()
	svc := session.NewService(
		store,
		fantasy.NewAllocator(42),
		locks,
		orders,
		stubSettlements{unresolved: unresolved},
		notify.NopNotifier{},
		policy,
	)

	return &sessionFixture{
		service:  svc,
		store:    store,
		orders:   orders,
		orderSvc: order.NewService(orders, store, locks, notify.NopNotifier{}),
	}
}

func TestCheckIn(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 12, false)
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	assert.Equal(t, int64(12), sess.TableID)

	// Same table again without opting in is a conflict.
	_, err = fx.service.CheckIn(ctx, 12, false)
	assert.ErrorIs(t, err, session.ErrTableOccupied)

	joined, err := fx.service.CheckIn(ctx, 12, true)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, joined.ID)

	other, err := fx.service.CheckIn(ctx, 13, false)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
}

func TestJoinAllocatesFantasyName(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)

	p, err := fx.service.Join(ctx, sess.ID, nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, p.FantasyName)
	assert.True(t, p.Active())

	userID := int64(99)
	q, err := fx.service.Join(ctx, sess.ID, &userID, "The Regular")
	require.NoError(t, err)
	assert.Equal(t, "The Regular", q.FantasyName)
	require.NotNil(t, q.UserID)
	assert.Equal(t, userID, *q.UserID)
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)

	_, err = fx.service.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)

	// Uniqueness is case-insensitive and ignores surrounding whitespace.
	_, err = fx.service.Join(ctx, sess.ID, nil, "  brave wolf ")
	assert.ErrorIs(t, err, session.ErrNameTaken)
}

func TestConcurrentJoinsGetUniqueNames(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.service.Join(ctx, sess.ID, nil, "")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	participants, err := fx.store.ParticipantsBySession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, participants, n)

	seen := make(map[string]struct{}, n)
	for _, p := range participants {
		key := fantasy.Normalize(p.FantasyName)
		_, dup := seen[key]
		assert.False(t, dup, "duplicate fantasy name %q", p.FantasyName)
		seen[key] = struct{}{}
	}
}

func TestRename(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
	a, err := fx.service.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	b, err := fx.service.Join(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	got, err := fx.service.Rename(ctx, a.ID, "Silent Owl")
	require.NoError(t, err)
	assert.Equal(t, "Silent Owl", got.FantasyName)

	_, err = fx.service.Rename(ctx, b.ID, "silent owl")
	assert.ErrorIs(t, err, session.ErrNameTaken)

	_, err = fx.service.Rename(ctx, b.ID, "   ")
	assert.ErrorIs(t, err, session.ErrNameEmpty)

	// A freed name becomes available again.
	require.NoError(t, fx.service.Leave(ctx, a.ID))
	got, err = fx.service.Rename(ctx, b.ID, "Silent Owl")
	require.NoError(t, err)
	assert.Equal(t, "Silent Owl", got.FantasyName)
}

func TestLeaveReassignsOpenOrders(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
	creator, err := fx.service.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	leaver, err := fx.service.Join(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	ord, err := fx.orderSvc.CreateCart(ctx, sess.ID, leaver.ID, "")
	require.NoError(t, err)
	_, err = fx.orderSvc.AddItem(ctx, ord.ID, leaver.ID, 5, 1, 1100, nil, "")
	require.NoError(t, err)

	require.NoError(t, fx.service.Leave(ctx, leaver.ID))

	ord, err = fx.orderSvc.GetOrder(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, creator.ID, ord.OwnerParticipantID)
	assert.Len(t, ord.Items, 1)

	left, err := fx.store.GetParticipant(ctx, leaver.ID)
	require.NoError(t, err)
	assert.False(t, left.Active())

	require.ErrorIs(t, fx.service.Leave(ctx, leaver.ID), session.ErrParticipantLeft)
}

func TestLeaveBlockedByOpenOrders(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyBlock, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
	_, err = fx.service.Join(ctx, sess.ID, nil, "Brave Wolf")
	require.NoError(t, err)
	leaver, err := fx.service.Join(ctx, sess.ID, nil, "Clever Fox")
	require.NoError(t, err)

	ord, err := fx.orderSvc.CreateCart(ctx, sess.ID, leaver.ID, "")
	require.NoError(t, err)

	err = fx.service.Leave(ctx, leaver.ID)
	assert.ErrorIs(t, err, session.ErrOwnsOpenOrders)

	// Cancelling the cart unblocks the leave.
	_, err = fx.orderSvc.Cancel(ctx, ord.ID, "")
	require.NoError(t, err)
	require.NoError(t, fx.service.Leave(ctx, leaver.ID))
}

func TestEndSession(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
	p, err := fx.service.Join(ctx, sess.ID, nil, "")
	require.NoError(t, err)

	ord, err := fx.orderSvc.CreateCart(ctx, sess.ID, p.ID, "")
	require.NoError(t, err)

	_, err = fx.service.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotSettleable)

	_, err = fx.orderSvc.Cancel(ctx, ord.ID, "")
	require.NoError(t, err)

	ended, err := fx.service.EndSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.EndedAt)

	_, err = fx.service.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionEnded)

	// The table is free again.
	_, err = fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
}

func TestEndSessionBlockedByUnresolvedSplits(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 1)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)

	_, err = fx.service.EndSession(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrSessionNotSettleable)

	// The quiet variant must not close the session either.
	fx.service.EndIfSettleable(ctx, sess.ID)
	got, err := fx.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestJoinEndedSession(t *testing.T) {
	fx := newSessionFixture(t, config.OrphanPolicyCreator, 0)
	ctx := context.Background()

	sess, err := fx.service.CheckIn(ctx, 1, false)
	require.NoError(t, err)
	_, err = fx.service.EndSession(ctx, sess.ID)
	require.NoError(t, err)

	_, err = fx.service.Join(ctx, sess.ID, nil, "")
	assert.ErrorIs(t, err, session.ErrSessionEnded)
}
