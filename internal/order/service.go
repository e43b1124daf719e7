package order

import (
	"context"
	"errors"
	"strings"

	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// Common errors
var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrItemNotFound           = errors.New("order item not found")
	ErrSessionNotFound        = errors.New("table session not found")
	ErrSessionEnded           = errors.New("table session has ended")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrParticipantInactive    = errors.New("participant is not active in this session")
	ErrNotOwner               = errors.New("only the order owner may do this")
	ErrOrderNotEditable       = errors.New("order is no longer editable")
	ErrOrderNotTransferable   = errors.New("order can only be transferred while pending or confirmed")
	ErrEmptyCart              = errors.New("cannot confirm an empty cart")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrNegativePrice          = errors.New("unit price cannot be negative")
	ErrInvalidTransition      = errors.New("illegal order status transition")
	ErrOrderTerminal          = errors.New("order is already in a terminal state")
	ErrCancelReasonRequired   = errors.New("cancelling a confirmed order requires a reason")
	ErrTransferAcrossSessions = errors.New("both participants must belong to the order's session")
)

// Service owns each participant's mutable cart and its transition into an
// immutable kitchen-visible order.
type Service struct {
	store        Store
	participants ParticipantDirectory
	locks        *locker.SessionLocker
	notifier     notify.Notifier
}

// NewService creates an order service with dependencies injected.
func NewService(store Store, participants ParticipantDirectory, locks *locker.SessionLocker, notifier notify.Notifier) *Service {
	return &Service{
		store:        store,
		participants: participants,
		locks:        locks,
		notifier:     notifier,
	}
}

// CreateCart opens a new pending order owned by the given participant.
func (s *Service) CreateCart(ctx context.Context, sessionID, ownerParticipantID int64, notes string) (*Order, error) {
	sess, err := s.participants.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		return nil, ErrSessionEnded
	}

	owner, err := s.participants.GetParticipant(ctx, ownerParticipantID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrParticipantNotFound
	}
	if owner.SessionID != sessionID || !owner.Active() {
		return nil, ErrParticipantInactive
	}

	return s.store.CreateOrder(ctx, sessionID, ownerParticipantID, strings.TrimSpace(notes))
}

// GetOrder retrieves an order with its items.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Order, error) {
	ord, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, ErrOrderNotFound
	}
	return ord, nil
}

// AddItem appends a line item to a pending order. The unit price and
// surcharges come from the menu collaborator and are locked in here; order
// totals are recomputed atomically with the insert.
func (s *Service) AddItem(ctx context.Context, orderID, actor int64, menuItemID int64, quantity int, unitPrice money.Cents, customizations []Customization, notes string) (*Item, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if unitPrice < 0 {
		return nil, ErrNegativePrice
	}
	for _, c := range customizations {
		if c.Surcharge < 0 {
			return nil, ErrNegativePrice
		}
	}

	ord, err := s.editableOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}

	item := &Item{
		OrderID:        ord.ID,
		MenuItemID:     menuItemID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		Customizations: customizations,
		Notes:          strings.TrimSpace(notes),
		TotalPrice:     linePrice(unitPrice, quantity, customizations),
	}
	return s.store.InsertItem(ctx, item)
}

// UpdateQuantity changes a line item's quantity; zero removes the item.
func (s *Service) UpdateQuantity(ctx context.Context, itemID, actor int64, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrItemNotFound
	}

	if _, err := s.editableOrder(ctx, item.OrderID, actor); err != nil {
		return err
	}

	if quantity == 0 {
		return s.store.DeleteItem(ctx, itemID)
	}
	return s.store.UpdateItemQuantity(ctx, itemID, quantity, linePrice(item.UnitPrice, quantity, item.Customizations))
}

// Confirm freezes a cart into a kitchen-visible order.
func (s *Service) Confirm(ctx context.Context, orderID, actor int64) (*Order, error) {
	ord, err := s.editableOrder(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if len(ord.Items) == 0 {
		return nil, ErrEmptyCart
	}

	ok, err := s.store.UpdateOrderStatus(ctx, orderID, []Status{StatusPending}, StatusConfirmed, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotEditable
	}

	ord, err = s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(notify.Event{
		Type:      notify.EventOrderConfirmed,
		SessionID: ord.SessionID,
		Data:      ord,
	})
	return ord, nil
}

// TransferOwnership reassigns an order to another active participant of the
// same session. The actor must be the current owner or the session creator.
// Items, totals and status are untouched.
func (s *Service) TransferOwnership(ctx context.Context, orderID, from, to, actor int64) (*Order, error) {
	ord, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Acquire(ctx, ord.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock.
	ord, err = s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != StatusPending && ord.Status != StatusConfirmed {
		return nil, ErrOrderNotTransferable
	}
	if ord.OwnerParticipantID != from {
		return nil, ErrNotOwner
	}

	target, err := s.participants.GetParticipant(ctx, to)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrParticipantNotFound
	}
	if target.SessionID != ord.SessionID || !target.Active() {
		return nil, ErrTransferAcrossSessions
	}

	if actor != 0 && actor != from {
		creator, err := s.sessionCreator(ctx, ord.SessionID)
		if err != nil {
			return nil, err
		}
		if creator == nil || creator.ID != actor {
			return nil, ErrNotOwner
		}
	}

	if err := s.store.SetOwner(ctx, orderID, to); err != nil {
		return nil, err
	}
	ord.OwnerParticipantID = to
	return ord, nil
}

// UpdateStatus applies a kitchen-driven transition
// (confirmed -> preparing -> ready -> delivered).
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, to Status) (*Order, error) {
	from, ok := kitchenFlow[to]
	if !ok {
		return nil, ErrInvalidTransition
	}

	ord, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status.Terminal() {
		return nil, ErrOrderTerminal
	}

	applied, err := s.store.UpdateOrderStatus(ctx, orderID, []Status{from}, to, nil)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrInvalidTransition
	}
	ord.Status = to

	s.notifier.Publish(notify.Event{
		Type:      notify.EventOrderStatus,
		SessionID: ord.SessionID,
		Data:      ord,
	})
	return ord, nil
}

// Cancel terminates an order from any non-terminal state. Once the kitchen
// has seen the order a reason is mandatory and staff are notified.
func (s *Service) Cancel(ctx context.Context, orderID int64, reason string) (*Order, error) {
	ord, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status.Terminal() {
		return nil, ErrOrderTerminal
	}

	reason = strings.TrimSpace(reason)
	confirmed := ord.Status != StatusPending
	if confirmed && reason == "" {
		return nil, ErrCancelReasonRequired
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}

	nonTerminal := []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReady}
	applied, err := s.store.UpdateOrderStatus(ctx, orderID, nonTerminal, StatusCancelled, reasonPtr)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrOrderTerminal
	}
	ord.Status = StatusCancelled
	ord.CancelReason = reasonPtr

	if confirmed {
		s.notifier.Publish(notify.Event{
			Type:      notify.EventOrderCancelled,
			SessionID: ord.SessionID,
			Data:      ord,
		})
	}
	return ord, nil
}

// editableOrder loads an order and checks it is a pending cart the actor may
// edit. Actor zero means a staff request and bypasses the owner check.
func (s *Service) editableOrder(ctx context.Context, orderID, actor int64) (*Order, error) {
	ord, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.Status != StatusPending {
		return nil, ErrOrderNotEditable
	}
	if actor != 0 && ord.OwnerParticipantID != actor {
		return nil, ErrNotOwner
	}
	return ord, nil
}

// sessionCreator returns the earliest-joined participant of a session.
func (s *Service) sessionCreator(ctx context.Context, sessionID int64) (*session.Participant, error) {
	participants, err := s.participants.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}
	return participants[0], nil
}
