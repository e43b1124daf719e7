package order

import (
	"time"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// CreateOrderRequest represents the request to open a new cart
type CreateOrderRequest struct {
	SessionID          int64  `json:"session_id"`
	OwnerParticipantID int64  `json:"owner_participant_id"`
	Notes              string `json:"notes,omitempty"`
}

// AddItemRequest represents the request to add a line item to a cart.
// Prices come from the menu collaborator and are locked in at add time.
type AddItemRequest struct {
	MenuItemID     int64           `json:"menu_item_id"`
	Quantity       int             `json:"quantity"`
	UnitPriceCents money.Cents     `json:"unit_price_cents"`
	Customizations []Customization `json:"customizations,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// UpdateItemRequest represents the request to change a line item's quantity
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// TransferRequest represents the request to move an order to a new owner
type TransferRequest struct {
	ToParticipantID int64 `json:"to_participant_id"`
}

// StatusRequest represents a kitchen-driven status transition
type StatusRequest struct {
	Status Status `json:"status"`
}

// CancelRequest represents the request to cancel an order
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID                 int64           `json:"id"`
	SessionID          int64           `json:"session_id"`
	OwnerParticipantID int64           `json:"owner_participant_id"`
	Status             Status          `json:"status"`
	Items              []*ItemResponse `json:"items"`
	SubtotalCents      money.Cents     `json:"subtotal_cents"`
	TaxAmountCents     money.Cents     `json:"tax_amount_cents"`
	TotalAmountCents   money.Cents     `json:"total_amount_cents"`
	Notes              string          `json:"notes,omitempty"`
	CancelReason       *string         `json:"cancel_reason,omitempty"`
	CreatedAt          string          `json:"created_at"`
}

// ItemResponse represents a line item in API responses
type ItemResponse struct {
	ID              int64           `json:"id"`
	MenuItemID      int64           `json:"menu_item_id"`
	Quantity        int             `json:"quantity"`
	UnitPriceCents  money.Cents     `json:"unit_price_cents"`
	Customizations  []Customization `json:"customizations,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	TotalPriceCents money.Cents     `json:"total_price_cents"`
}

// ToResponse converts an Order model to an OrderResponse DTO
func (o *Order) ToResponse() *OrderResponse {
	items := make([]*ItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = item.ToResponse()
	}
	return &OrderResponse{
		ID:                 o.ID,
		SessionID:          o.SessionID,
		OwnerParticipantID: o.OwnerParticipantID,
		Status:             o.Status,
		Items:              items,
		SubtotalCents:      o.Subtotal,
		TaxAmountCents:     o.TaxAmount,
		TotalAmountCents:   o.TotalAmount,
		Notes:              o.Notes,
		CancelReason:       o.CancelReason,
		CreatedAt:          o.CreatedAt.Format(time.RFC3339),
	}
}

// ToResponse converts an Item model to an ItemResponse DTO
func (i *Item) ToResponse() *ItemResponse {
	return &ItemResponse{
		ID:              i.ID,
		MenuItemID:      i.MenuItemID,
		Quantity:        i.Quantity,
		UnitPriceCents:  i.UnitPrice,
		Customizations:  i.Customizations,
		Notes:           i.Notes,
		TotalPriceCents: i.TotalPrice,
	}
}
