package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// MemoryStore is an in-process Store used for local development and tests.
// Its mutex makes every item mutation atomic with the totals recompute.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	taxBPS int
	orders map[int64]*Order
	items  map[int64]*Item
}

// NewMemoryStore creates an empty in-memory store with the given tax rate in
// basis points.
func NewMemoryStore(taxBPS int) *MemoryStore {
	return &MemoryStore{
		taxBPS: taxBPS,
		orders: make(map[int64]*Order),
		items:  make(map[int64]*Item),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateOrder implements Store.
func (m *MemoryStore) CreateOrder(ctx context.Context, sessionID, ownerParticipantID int64, notes string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	ord := &Order{
		ID:                 m.id(),
		SessionID:          sessionID,
		OwnerParticipantID: ownerParticipantID,
		Status:             StatusPending,
		Notes:              notes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	m.orders[ord.ID] = ord
	return m.cloneOrder(ord), nil
}

// GetOrder implements Store.
func (m *MemoryStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ord, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return m.cloneOrder(ord), nil
}

// OrdersBySession implements Store.
func (m *MemoryStore) OrdersBySession(ctx context.Context, sessionID int64) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []*Order
	for _, ord := range m.orders {
		if ord.SessionID == sessionID {
			orders = append(orders, m.cloneOrder(ord))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

// GetItem implements Store.
func (m *MemoryStore) GetItem(ctx context.Context, id int64) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	out := *item
	return &out, nil
}

// InsertItem implements Store.
func (m *MemoryStore) InsertItem(ctx context.Context, item *Item) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *item
	stored.ID = m.id()
	m.items[stored.ID] = &stored
	m.recomputeTotals(stored.OrderID)

	out := stored
	return &out, nil
}

// UpdateItemQuantity implements Store.
func (m *MemoryStore) UpdateItemQuantity(ctx context.Context, id int64, quantity int, totalPrice money.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil
	}
	item.Quantity = quantity
	item.TotalPrice = totalPrice
	m.recomputeTotals(item.OrderID)
	return nil
}

// DeleteItem implements Store.
func (m *MemoryStore) DeleteItem(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil
	}
	delete(m.items, id)
	m.recomputeTotals(item.OrderID)
	return nil
}

// UpdateOrderStatus implements Store.
func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, id int64, from []Status, to Status, cancelReason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ord, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if ord.Status == s {
			ord.Status = to
			if cancelReason != nil {
				reason := *cancelReason
				ord.CancelReason = &reason
			}
			ord.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

// SetOwner implements Store.
func (m *MemoryStore) SetOwner(ctx context.Context, orderID, ownerParticipantID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ord, ok := m.orders[orderID]; ok {
		ord.OwnerParticipantID = ownerParticipantID
		ord.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// OpenOrderCountByOwner implements session.OrderDirectory.
func (m *MemoryStore) OpenOrderCountByOwner(ctx context.Context, participantID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, ord := range m.orders {
		if ord.OwnerParticipantID == participantID && !ord.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// OpenOrderCountBySession implements session.OrderDirectory.
func (m *MemoryStore) OpenOrderCountBySession(ctx context.Context, sessionID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, ord := range m.orders {
		if ord.SessionID == sessionID && !ord.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// ReassignOpenOrders implements session.OrderDirectory.
func (m *MemoryStore) ReassignOpenOrders(ctx context.Context, from, to int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var moved int64
	for _, ord := range m.orders {
		if ord.OwnerParticipantID == from && !ord.Status.Terminal() {
			ord.OwnerParticipantID = to
			ord.UpdatedAt = time.Now().UTC()
			moved++
		}
	}
	return moved, nil
}

// recomputeTotals must be called with the write lock held.
func (m *MemoryStore) recomputeTotals(orderID int64) {
	ord, ok := m.orders[orderID]
	if !ok {
		return
	}

	var subtotal money.Cents
	for _, item := range m.items {
		if item.OrderID == orderID {
			subtotal += item.TotalPrice
		}
	}
	ord.Subtotal = subtotal
	ord.TaxAmount = money.Percent(subtotal, m.taxBPS)
	ord.TotalAmount = ord.Subtotal + ord.TaxAmount
	ord.UpdatedAt = time.Now().UTC()
}

// cloneOrder must be called with at least the read lock held.
func (m *MemoryStore) cloneOrder(ord *Order) *Order {
	out := *ord
	out.Items = []*Item{}
	for _, item := range m.items {
		if item.OrderID == ord.ID {
			copied := *item
			out.Items = append(out.Items, &copied)
		}
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ID < out.Items[j].ID })
	return &out
}
