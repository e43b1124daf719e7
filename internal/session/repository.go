package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new session repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// CreateSession inserts a new active table session. The partial unique index
// on (table_id) WHERE is_active enforces one active session per table even
// under concurrent check-ins.
func (r *Repository) CreateSession(ctx context.Context, tableID int64) (*TableSession, error) {
	query := `
		INSERT INTO table_sessions (table_id)
		VALUES ($1)
		RETURNING id, table_id, started_at, ended_at, is_active
	`

	sess := &TableSession{}
	err := r.db.QueryRowContext(ctx, query, tableID).Scan(
		&sess.ID,
		&sess.TableID,
		&sess.StartedAt,
		&sess.EndedAt,
		&sess.IsActive,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, ErrDuplicateActiveSession
		}
		return nil, fmt.Errorf("failed to create table session: %w", err)
	}

	return sess, nil
}

// GetSession retrieves a table session by its ID
func (r *Repository) GetSession(ctx context.Context, id int64) (*TableSession, error) {
	query := `
		SELECT id, table_id, started_at, ended_at, is_active
		FROM table_sessions
		WHERE id = $1
	`

	sess := &TableSession{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ID,
		&sess.TableID,
		&sess.StartedAt,
		&sess.EndedAt,
		&sess.IsActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get table session: %w", err)
	}

	return sess, nil
}

// ActiveSessionByTable retrieves the active session for a table, or nil.
func (r *Repository) ActiveSessionByTable(ctx context.Context, tableID int64) (*TableSession, error) {
	query := `
		SELECT id, table_id, started_at, ended_at, is_active
		FROM table_sessions
		WHERE table_id = $1 AND is_active
	`

	sess := &TableSession{}
	err := r.db.QueryRowContext(ctx, query, tableID).Scan(
		&sess.ID,
		&sess.TableID,
		&sess.StartedAt,
		&sess.EndedAt,
		&sess.IsActive,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	return sess, nil
}

// EndSession marks a session inactive.
func (r *Repository) EndSession(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE table_sessions
		SET ended_at = $2, is_active = FALSE
		WHERE id = $1 AND is_active
	`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to end table session: %w", err)
	}
	return nil
}

// CreateParticipant inserts a new participant into a session.
func (r *Repository) CreateParticipant(ctx context.Context, sessionID int64, userID *int64, name string) (*Participant, error) {
	query := `
		INSERT INTO participants (session_id, user_id, fantasy_name)
		VALUES ($1, $2, $3)
		RETURNING id, session_id, user_id, fantasy_name, joined_at, left_at
	`

	participant := &Participant{}
	err := r.db.QueryRowContext(ctx, query, sessionID, userID, name).Scan(
		&participant.ID,
		&participant.SessionID,
		&participant.UserID,
		&participant.FantasyName,
		&participant.JoinedAt,
		&participant.LeftAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	return participant, nil
}

// GetParticipant retrieves a participant by its ID
func (r *Repository) GetParticipant(ctx context.Context, id int64) (*Participant, error) {
	query := `
		SELECT id, session_id, user_id, fantasy_name, joined_at, left_at
		FROM participants
		WHERE id = $1
	`

	participant := &Participant{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&participant.ID,
		&participant.SessionID,
		&participant.UserID,
		&participant.FantasyName,
		&participant.JoinedAt,
		&participant.LeftAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	return participant, nil
}

// ParticipantsBySession retrieves all participants of a session in join order.
func (r *Repository) ParticipantsBySession(ctx context.Context, sessionID int64) ([]*Participant, error) {
	query := `
		SELECT id, session_id, user_id, fantasy_name, joined_at, left_at
		FROM participants
		WHERE session_id = $1
		ORDER BY joined_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		participant := &Participant{}
		if err := rows.Scan(
			&participant.ID,
			&participant.SessionID,
			&participant.UserID,
			&participant.FantasyName,
			&participant.JoinedAt,
			&participant.LeftAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, participant)
	}

	return participants, rows.Err()
}

// RenameParticipant updates a participant's fantasy name.
func (r *Repository) RenameParticipant(ctx context.Context, id int64, name string) error {
	query := `UPDATE participants SET fantasy_name = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, name); err != nil {
		return fmt.Errorf("failed to rename participant: %w", err)
	}
	return nil
}

// MarkLeft records a participant's departure.
func (r *Repository) MarkLeft(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE participants SET left_at = $2 WHERE id = $1 AND left_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to mark participant as left: %w", err)
	}
	return nil
}
