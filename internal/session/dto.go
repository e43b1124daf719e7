package session

import "time"

// CheckInRequest represents the request to open or join a table session
type CheckInRequest struct {
	TableID      int64 `json:"table_id"`
	JoinExisting bool  `json:"join_existing"`
}

// JoinRequest represents the request to register a diner in a session
type JoinRequest struct {
	UserID        *int64 `json:"user_id,omitempty"`
	RequestedName string `json:"requested_name,omitempty"`
}

// RenameRequest represents the request to change a fantasy name
type RenameRequest struct {
	Name string `json:"name"`
}

// SessionResponse represents a table session with its participants
type SessionResponse struct {
	ID           int64                  `json:"id"`
	TableID      int64                  `json:"table_id"`
	StartedAt    string                 `json:"started_at"`
	EndedAt      *string                `json:"ended_at,omitempty"`
	IsActive     bool                   `json:"is_active"`
	Participants []*ParticipantResponse `json:"participants,omitempty"`
}

// ParticipantResponse represents a participant in API responses
type ParticipantResponse struct {
	ID          int64   `json:"id"`
	SessionID   int64   `json:"session_id"`
	UserID      *int64  `json:"user_id,omitempty"`
	FantasyName string  `json:"fantasy_name"`
	JoinedAt    string  `json:"joined_at"`
	LeftAt      *string `json:"left_at,omitempty"`
}

// ToResponse converts a TableSession model to a SessionResponse DTO
func (s *TableSession) ToResponse() *SessionResponse {
	return &SessionResponse{
		ID:        s.ID,
		TableID:   s.TableID,
		StartedAt: s.StartedAt.Format(time.RFC3339),
		EndedAt:   formatTimePtr(s.EndedAt),
		IsActive:  s.IsActive,
	}
}

// ToResponse converts a Participant model to a ParticipantResponse DTO
func (p *Participant) ToResponse() *ParticipantResponse {
	return &ParticipantResponse{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		FantasyName: p.FantasyName,
		JoinedAt:    p.JoinedAt.Format(time.RFC3339),
		LeftAt:      formatTimePtr(p.LeftAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}
