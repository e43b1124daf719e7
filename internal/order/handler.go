package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tablesplit/tablesplit/pkg/middleware"
	"github.com/tablesplit/tablesplit/pkg/response"
)

// Handler handles HTTP requests for order operations
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for order endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/items", h.AddItem)
	r.Post("/{id}/confirm", h.Confirm)
	r.Post("/{id}/transfer", h.Transfer)
	r.Post("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/cancel", h.Cancel)

	return r
}

// ItemRoutes returns the router for order item endpoints
func (h *Handler) ItemRoutes() chi.Router {
	r := chi.NewRouter()

	r.Put("/{id}", h.UpdateItem)

	return r
}

// Create handles POST /orders
// @Summary      Open a cart
// @Description  Create a new pending order owned by a participant
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        request body CreateOrderRequest true "Cart request"
// @Success      201 {object} response.APIResponse{data=OrderResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /orders [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	ord, err := h.service.CreateCart(r.Context(), req.SessionID, req.OwnerParticipantID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrParticipantNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrSessionEnded), errors.Is(err, ErrParticipantInactive):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to create order")
		}
		return
	}

	response.JSON(w, http.StatusCreated, ord.ToResponse())
}

// GetByID handles GET /orders/{id}
// @Summary      Get an order
// @Tags         orders
// @Produce      json
// @Param        id path int true "Order ID"
// @Success      200 {object} response.APIResponse{data=OrderResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /orders/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	ord, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get order")
		return
	}

	response.JSON(w, http.StatusOK, ord.ToResponse())
}

// AddItem handles POST /orders/{id}/items
// @Summary      Add an item to a cart
// @Description  Only valid while the order is pending; totals recompute atomically
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path int true "Order ID"
// @Param        request body AddItemRequest true "Item to add"
// @Success      201 {object} response.APIResponse{data=ItemResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /orders/{id}/items [post]
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	actor, _ := middleware.GetParticipantID(r.Context())
	item, err := h.service.AddItem(r.Context(), id, actor, req.MenuItemID, req.Quantity, req.UnitPriceCents, req.Customizations, req.Notes)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, item.ToResponse())
}

// UpdateItem handles PUT /order-items/{id}
// @Summary      Change a line item's quantity
// @Description  Quantity zero removes the item
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path int true "Order item ID"
// @Param        request body UpdateItemRequest true "New quantity"
// @Success      200 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /order-items/{id} [put]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order item ID")
		return
	}

	var req UpdateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	actor, _ := middleware.GetParticipantID(r.Context())
	if err := h.service.UpdateQuantity(r.Context(), id, actor, req.Quantity); err != nil {
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Item updated"})
}

// Confirm handles POST /orders/{id}/confirm
// @Summary      Confirm a cart
// @Description  Freezes the cart and makes the order visible to the kitchen
// @Tags         orders
// @Produce      json
// @Param        id path int true "Order ID"
// @Success      200 {object} response.APIResponse{data=OrderResponse}
// @Failure      422 {object} response.APIResponse
// @Router       /orders/{id}/confirm [post]
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	actor, _ := middleware.GetParticipantID(r.Context())
	ord, err := h.service.Confirm(r.Context(), id, actor)
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			response.UnprocessableEntity(w, err.Error())
			return
		}
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ord.ToResponse())
}

// Transfer handles POST /orders/{id}/transfer
// @Summary      Transfer order ownership
// @Description  Moves the order to another active participant of the same session
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path int true "Order ID"
// @Param        request body TransferRequest true "Transfer target"
// @Success      200 {object} response.APIResponse{data=OrderResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /orders/{id}/transfer [post]
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	ord, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	actor, _ := middleware.GetParticipantID(r.Context())
	ord, err = h.service.TransferOwnership(r.Context(), id, ord.OwnerParticipantID, req.ToParticipantID, actor)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ord.ToResponse())
}

// UpdateStatus handles POST /orders/{id}/status
// @Summary      Apply a kitchen status transition
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path int true "Order ID"
// @Param        request body StatusRequest true "Target status"
// @Success      200 {object} response.APIResponse{data=OrderResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /orders/{id}/status [post]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	ord, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ord.ToResponse())
}

// Cancel handles POST /orders/{id}/cancel
// @Summary      Cancel an order
// @Description  A reason is required once the order has been confirmed
// @Tags         orders
// @Accept       json
// @Produce      json
// @Param        id path int true "Order ID"
// @Param        request body CancelRequest true "Cancellation reason"
// @Success      200 {object} response.APIResponse{data=OrderResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /orders/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid order ID")
		return
	}

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	ord, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ord.ToResponse())
}

// writeOrderError maps service errors to HTTP responses.
func (h *Handler) writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrParticipantNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrNegativePrice):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrCancelReasonRequired):
		response.UnprocessableEntity(w, err.Error())
	case errors.Is(err, ErrOrderNotEditable),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrOrderNotTransferable),
		errors.Is(err, ErrOrderTerminal),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrTransferAcrossSessions),
		errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrParticipantInactive):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, "Order operation failed")
	}
}
