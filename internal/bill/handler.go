package bill

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tablesplit/tablesplit/pkg/response"
)

// Handler handles HTTP requests for bill summaries
type Handler struct {
	service *Service
}

// NewHandler creates a new bill handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for bill endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{sessionID}", h.GetSummary)

	return r
}

// GetSummary handles GET /bills/{sessionID}
// @Summary      Get the group bill for a table session
// @Description  Staff view of every participant, their orders and settlement standing
// @Tags         bills
// @Produce      json
// @Param        sessionID path int true "Table session ID"
// @Success      200 {object} response.APIResponse{data=SummaryResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /bills/{sessionID} [get]
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	summary, err := h.service.Summarize(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to build bill summary")
		return
	}

	response.JSON(w, http.StatusOK, summary.ToResponse())
}
