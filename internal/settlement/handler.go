package settlement

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/middleware"
	"github.com/tablesplit/tablesplit/pkg/response"
)

// Handler handles HTTP requests for settlement operations
type Handler struct {
	service *Service
}

// NewHandler creates a new settlement handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for split session endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/payments", h.RecordPayment)
	r.Post("/{id}/pay", h.Pay)
	r.Post("/{id}/cancel", h.Cancel)

	return r
}

// Create handles POST /splits
// @Summary      Open a settlement round
// @Description  Computes each participant's obligation from the chosen strategy and persists the split atomically
// @Tags         splits
// @Accept       json
// @Produce      json
// @Param        request body CreateSplitRequest true "Split request"
// @Success      201 {object} response.APIResponse{data=SplitResponse}
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /splits [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	splitSession, contributions, err := h.service.CreateSplitSession(r.Context(), CreateInput{
		TableSessionID: req.TableSessionID,
		Strategy:       req.Strategy,
		TipAmount:      req.TipAmountCents,
		TipStrategy:    req.TipStrategy,
		Custom:         req.Custom,
		CustomTips:     req.CustomTips,
		Gifts:          req.Gifts,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrSessionEnded), errors.Is(err, ErrSplitAlreadyOpen):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrNothingToSettle), isSplitValidationError(err):
			response.UnprocessableEntity(w, err.Error())
		default:
			response.InternalError(w, "Failed to create split session")
		}
		return
	}

	response.JSON(w, http.StatusCreated, splitSession.ToResponse(contributions))
}

// GetByID handles GET /splits/{id}
// @Summary      Get a split session with its contributions
// @Tags         splits
// @Produce      json
// @Param        id path int true "Split session ID"
// @Success      200 {object} response.APIResponse{data=SplitResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /splits/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid split session ID")
		return
	}

	splitSession, contributions, err := h.service.GetSplit(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get split session")
		return
	}

	response.JSON(w, http.StatusOK, splitSession.ToResponse(contributions))
}

// RecordPayment handles POST /splits/{id}/payments
// @Summary      Record a payment outcome
// @Description  Applies a provider callback to one contribution; duplicate successes are idempotent no-ops
// @Tags         splits
// @Accept       json
// @Produce      json
// @Param        id path int true "Split session ID"
// @Param        request body RecordPaymentRequest true "Payment outcome"
// @Success      200 {object} response.APIResponse{data=ContributionResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /splits/{id}/payments [post]
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid split session ID")
		return
	}

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	contribution, err := h.service.RecordPayment(r.Context(), id, req.ParticipantID, Outcome(req.Outcome), req.PaymentRef)
	if err != nil {
		h.writeSettlementError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, contribution.ToResponse())
}

// Pay handles POST /splits/{id}/pay
// @Summary      Charge a participant's contribution
// @Description  Runs the charge through the payment terminal and records the outcome
// @Tags         splits
// @Accept       json
// @Produce      json
// @Param        id path int true "Split session ID"
// @Param        request body PayRequest true "Payment method"
// @Success      200 {object} response.APIResponse{data=ContributionResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /splits/{id}/pay [post]
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid split session ID")
		return
	}

	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	participantID := req.ParticipantID
	if actor, ok := middleware.GetParticipantID(r.Context()); ok && participantID == 0 {
		participantID = actor
	}
	if participantID == 0 {
		response.BadRequest(w, "Missing participant")
		return
	}

	contribution, err := h.service.Pay(r.Context(), id, participantID, req.Method)
	if err != nil {
		h.writeSettlementError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, contribution.ToResponse())
}

// Cancel handles POST /splits/{id}/cancel
// @Summary      Cancel a split session
// @Description  Only valid while no contribution has been paid; a new split can be created afterwards
// @Tags         splits
// @Accept       json
// @Produce      json
// @Param        id path int true "Split session ID"
// @Param        request body CancelSplitRequest true "Cancellation reason"
// @Success      200 {object} response.APIResponse{data=SplitResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /splits/{id}/cancel [post]
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid split session ID")
		return
	}

	var req CancelSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	splitSession, err := h.service.CancelSplitSession(r.Context(), id, req.Reason)
	if err != nil {
		h.writeSettlementError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, splitSession.ToResponse(nil))
}

// isSplitValidationError reports whether the calculator rejected the
// requested split, including unknown strategy names.
func isSplitValidationError(err error) bool {
	for _, target := range []error{
		split.ErrNoParticipants,
		split.ErrNegativeAmount,
		split.ErrDuplicateParticipant,
		split.ErrUnknownParticipant,
		split.ErrMissingCustomAmount,
		split.ErrSplitMismatch,
		split.ErrTipMismatch,
		split.ErrUnexpectedTip,
		split.ErrSelfGift,
		split.ErrGiftChain,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return strings.Contains(err.Error(), "unknown split type") ||
		strings.Contains(err.Error(), "unknown tip strategy")
}

// writeSettlementError maps service errors to HTTP responses.
func (h *Handler) writeSettlementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSplitNotFound), errors.Is(err, ErrContributionNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, ErrSplitTerminal),
		errors.Is(err, ErrContributionWaived),
		errors.Is(err, ErrContributionNotPayable),
		errors.Is(err, ErrHasPaidContributions):
		response.Conflict(w, err.Error())
	default:
		response.InternalError(w, "Settlement operation failed")
	}
}
