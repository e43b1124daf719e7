package order

import (
	"context"

	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// Store is the persistence boundary for orders and their items. Item
// mutations recompute the owning order's totals atomically with the write so
// the totals invariant holds under concurrent cart edits.
type Store interface {
	CreateOrder(ctx context.Context, sessionID, ownerParticipantID int64, notes string) (*Order, error)
	GetOrder(ctx context.Context, id int64) (*Order, error)
	OrdersBySession(ctx context.Context, sessionID int64) ([]*Order, error)

	GetItem(ctx context.Context, id int64) (*Item, error)
	InsertItem(ctx context.Context, item *Item) (*Item, error)
	UpdateItemQuantity(ctx context.Context, id int64, quantity int, totalPrice money.Cents) error
	DeleteItem(ctx context.Context, id int64) error

	// UpdateOrderStatus transitions the order only when its current status is
	// in from, reporting whether the transition happened.
	UpdateOrderStatus(ctx context.Context, id int64, from []Status, to Status, cancelReason *string) (bool, error)
	SetOwner(ctx context.Context, orderID, ownerParticipantID int64) error

	// session.OrderDirectory
	OpenOrderCountByOwner(ctx context.Context, participantID int64) (int, error)
	OpenOrderCountBySession(ctx context.Context, sessionID int64) (int, error)
	ReassignOpenOrders(ctx context.Context, from, to int64) (int64, error)
}

// ParticipantDirectory is the view of the session subsystem the order manager
// needs. session.Store satisfies it.
type ParticipantDirectory interface {
	GetSession(ctx context.Context, id int64) (*session.TableSession, error)
	GetParticipant(ctx context.Context, id int64) (*session.Participant, error)
	ParticipantsBySession(ctx context.Context, sessionID int64) ([]*session.Participant, error)
}
