package session

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateActiveSession is returned by Store.CreateSession when another
// active session already exists for the table.
var ErrDuplicateActiveSession = errors.New("an active session already exists for this table")

// Store is the persistence boundary for sessions and participants.
type Store interface {
	CreateSession(ctx context.Context, tableID int64) (*TableSession, error)
	GetSession(ctx context.Context, id int64) (*TableSession, error)
	ActiveSessionByTable(ctx context.Context, tableID int64) (*TableSession, error)
	EndSession(ctx context.Context, id int64, at time.Time) error

	CreateParticipant(ctx context.Context, sessionID int64, userID *int64, name string) (*Participant, error)
	GetParticipant(ctx context.Context, id int64) (*Participant, error)
	// ParticipantsBySession returns all participants in join order.
	ParticipantsBySession(ctx context.Context, sessionID int64) ([]*Participant, error)
	RenameParticipant(ctx context.Context, id int64, name string) error
	MarkLeft(ctx context.Context, id int64, at time.Time) error
}

// OrderDirectory is the view of the order subsystem the registry needs for
// leave and end-session checks. Implemented by the order store.
type OrderDirectory interface {
	OpenOrderCountByOwner(ctx context.Context, participantID int64) (int, error)
	OpenOrderCountBySession(ctx context.Context, sessionID int64) (int, error)
	// ReassignOpenOrders moves every non-terminal order from one owner to
	// another and returns how many were moved.
	ReassignOpenOrders(ctx context.Context, from, to int64) (int64, error)
}

// SettlementDirectory is the view of the settlement subsystem the registry
// needs for the end-session check. Implemented by the settlement store.
type SettlementDirectory interface {
	UnresolvedSplitCount(ctx context.Context, sessionID int64) (int, error)
}
