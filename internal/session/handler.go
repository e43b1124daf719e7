package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tablesplit/tablesplit/pkg/response"
)

// Handler handles HTTP requests for session and participant operations
type Handler struct {
	service *Service
}

// NewHandler creates a new session handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for session endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/check-in", h.CheckIn)
	r.Get("/{id}", h.GetByID)
	r.Post("/{id}/participants", h.Join)
	r.Post("/{id}/end", h.End)

	return r
}

// ParticipantRoutes returns the router for participant endpoints
func (h *Handler) ParticipantRoutes() chi.Router {
	r := chi.NewRouter()

	r.Put("/{id}/name", h.Rename)
	r.Post("/{id}/leave", h.Leave)

	return r
}

// CheckIn handles POST /sessions/check-in
// @Summary      Check in at a table
// @Description  Open a new table session, or join the existing active one
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request body CheckInRequest true "Check-in request"
// @Success      201 {object} response.APIResponse{data=SessionResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /sessions/check-in [post]
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if req.TableID <= 0 {
		response.BadRequest(w, "table_id is required")
		return
	}

	sess, err := h.service.CheckIn(r.Context(), req.TableID, req.JoinExisting)
	if err != nil {
		if errors.Is(err, ErrTableOccupied) {
			response.Conflict(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to check in")
		return
	}

	response.JSON(w, http.StatusCreated, sess.ToResponse())
}

// GetByID handles GET /sessions/{id}
// @Summary      Get a table session
// @Description  Get a session with all its participants
// @Tags         sessions
// @Produce      json
// @Param        id path int true "Session ID"
// @Success      200 {object} response.APIResponse{data=SessionResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /sessions/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	sess, participants, err := h.service.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(w, err.Error())
			return
		}
		response.InternalError(w, "Failed to get session")
		return
	}

	resp := sess.ToResponse()
	resp.Participants = make([]*ParticipantResponse, len(participants))
	for i, p := range participants {
		resp.Participants[i] = p.ToResponse()
	}

	response.JSON(w, http.StatusOK, resp)
}

// Join handles POST /sessions/{id}/participants
// @Summary      Join a session
// @Description  Register a diner; anonymous diners get a fantasy name
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path int true "Session ID"
// @Param        request body JoinRequest true "Join request"
// @Success      201 {object} response.APIResponse{data=ParticipantResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /sessions/{id}/participants [post]
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	participant, err := h.service.Join(r.Context(), id, req.UserID, req.RequestedName)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrSessionEnded):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrNameTaken):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to join session")
		}
		return
	}

	response.JSON(w, http.StatusCreated, participant.ToResponse())
}

// Rename handles PUT /participants/{id}/name
// @Summary      Rename a participant
// @Tags         participants
// @Accept       json
// @Produce      json
// @Param        id path int true "Participant ID"
// @Param        request body RenameRequest true "New name"
// @Success      200 {object} response.APIResponse{data=ParticipantResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /participants/{id}/name [put]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid participant ID")
		return
	}

	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	participant, err := h.service.Rename(r.Context(), id, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrParticipantNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrParticipantLeft):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrNameTaken):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrNameEmpty):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to rename participant")
		}
		return
	}

	response.JSON(w, http.StatusOK, participant.ToResponse())
}

// Leave handles POST /participants/{id}/leave
// @Summary      Leave a session
// @Description  Soft-removes the participant; open orders fall back per policy
// @Tags         participants
// @Produce      json
// @Param        id path int true "Participant ID"
// @Success      200 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /participants/{id}/leave [post]
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid participant ID")
		return
	}

	if err := h.service.Leave(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrParticipantNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrParticipantLeft):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrOwnsOpenOrders):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to leave session")
		}
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Left the session"})
}

// End handles POST /sessions/{id}/end
// @Summary      End a table session
// @Description  Fails while orders are open or split sessions are unresolved
// @Tags         sessions
// @Produce      json
// @Param        id path int true "Session ID"
// @Success      200 {object} response.APIResponse{data=SessionResponse}
// @Failure      409 {object} response.APIResponse
// @Router       /sessions/{id}/end [post]
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	sess, err := h.service.EndSession(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrSessionEnded):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrSessionNotSettleable):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to end session")
		}
		return
	}

	response.JSON(w, http.StatusOK, sess.ToResponse())
}
