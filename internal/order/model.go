package order

import (
	"time"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// Status represents the lifecycle state of an order
type Status string

const (
	StatusPending   Status = "pending" // the mutable cart
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// kitchenFlow maps each kitchen-driven target status to the statuses it may
// be reached from.
var kitchenFlow = map[Status]Status{
	StatusPreparing: StatusConfirmed,
	StatusReady:     StatusPreparing,
	StatusDelivered: StatusReady,
}

// Order is owned by exactly one participant at any instant. While pending it
// is the participant's cart; once confirmed it is immutable except for
// status transitions.
type Order struct {
	ID                 int64       `json:"id"`
	SessionID          int64       `json:"session_id"`
	OwnerParticipantID int64       `json:"owner_participant_id"`
	Status             Status      `json:"status"`
	Items              []*Item     `json:"items"`
	Subtotal           money.Cents `json:"subtotal_cents"`
	TaxAmount          money.Cents `json:"tax_amount_cents"`
	TotalAmount        money.Cents `json:"total_amount_cents"`
	Notes              string      `json:"notes"`
	CancelReason       *string     `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Item is one line item of an order. Pricing is locked in when the item is
// added; the menu collaborator is never consulted again.
type Item struct {
	ID             int64           `json:"id"`
	OrderID        int64           `json:"order_id"`
	MenuItemID     int64           `json:"menu_item_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      money.Cents     `json:"unit_price_cents"`
	Customizations []Customization `json:"customizations"`
	Notes          string          `json:"notes"`
	TotalPrice     money.Cents     `json:"total_price_cents"`
}

// Customization is one add-on with its surcharge, e.g. extra cheese.
type Customization struct {
	Name      string      `json:"name"`
	Surcharge money.Cents `json:"surcharge_cents"`
}

// linePrice computes an item's total: unit price times quantity plus the
// customization surcharges.
func linePrice(unitPrice money.Cents, quantity int, customizations []Customization) money.Cents {
	total := unitPrice * money.Cents(quantity)
	for _, c := range customizations {
		total += c.Surcharge
	}
	return total
}
