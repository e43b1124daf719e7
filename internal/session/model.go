package session

import "time"

// TableSession represents one continuous occupancy of a physical table by a
// group of diners. At most one session per table is active at a time.
type TableSession struct {
	ID        int64      `json:"id"`
	TableID   int64      `json:"table_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// Participant represents one diner within a table session, identified by a
// fantasy name unique among the session's active participants.
type Participant struct {
	ID          int64      `json:"id"`
	SessionID   int64      `json:"session_id"`
	UserID      *int64     `json:"user_id,omitempty"` // nil for anonymous diners
	FantasyName string     `json:"fantasy_name"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the participant is still at the table.
func (p *Participant) Active() bool {
	return p.LeftAt == nil
}
