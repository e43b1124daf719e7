package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a settlement repository backed by the given database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const splitColumns = `id, table_session_id, strategy, base_amount, tip_amount, tip_strategy,
	status, cancel_reason, created_at, updated_at`

const contributionColumns = `id, split_session_id, participant_id, amount_due, amount_paid,
	payment_ref, status, paid_by_participant_id, updated_at`

// CreateSplit persists the split and its contributions in one transaction.
func (r *Repository) CreateSplit(ctx context.Context, s *SplitSession, contributions []*Contribution) (*SplitSession, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO split_sessions (table_session_id, strategy, base_amount, tip_amount, tip_strategy, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + splitColumns

	stored, err := scanSplit(tx.QueryRowContext(ctx, query,
		s.TableSessionID, s.Strategy, s.BaseAmount, s.TipAmount, s.TipStrategy, s.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to create split session: %w", err)
	}

	for _, c := range contributions {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO contributions (split_session_id, participant_id, amount_due, status, paid_by_participant_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			stored.ID, c.ParticipantID, c.AmountDue, c.Status, c.PaidByParticipantID,
		).Scan(&c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create contribution: %w", err)
		}
		c.SplitSessionID = stored.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit split session: %w", err)
	}
	return stored, nil
}

// GetSplit retrieves a split session by ID. Returns nil when absent.
func (r *Repository) GetSplit(ctx context.Context, id int64) (*SplitSession, error) {
	query := `SELECT ` + splitColumns + ` FROM split_sessions WHERE id = $1`

	s, err := scanSplit(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split session: %w", err)
	}
	return s, nil
}

// ContributionsBySplit returns the split's contributions in creation
// order, which preserves participant join order.
func (r *Repository) ContributionsBySplit(ctx context.Context, splitID int64) ([]*Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions WHERE split_session_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, splitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var out []*Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetContribution returns one participant's contribution in a split.
// Returns nil when absent.
func (r *Repository) GetContribution(ctx context.Context, splitID, participantID int64) (*Contribution, error) {
	query := `SELECT ` + contributionColumns + ` FROM contributions
		WHERE split_session_id = $1 AND participant_id = $2`

	c, err := scanContribution(r.db.QueryRowContext(ctx, query, splitID, participantID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution: %w", err)
	}
	return c, nil
}

// NonTerminalSplitBySession returns the session's unresolved split, or nil.
func (r *Repository) NonTerminalSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error) {
	query := `SELECT ` + splitColumns + ` FROM split_sessions
		WHERE table_session_id = $1 AND status IN ('open', 'partially_settled')
		ORDER BY id DESC LIMIT 1`

	s, err := scanSplit(r.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unresolved split session: %w", err)
	}
	return s, nil
}

// LatestSplitBySession returns the session's most recent split, or nil.
func (r *Repository) LatestSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error) {
	query := `SELECT ` + splitColumns + ` FROM split_sessions
		WHERE table_session_id = $1 ORDER BY id DESC LIMIT 1`

	s, err := scanSplit(r.db.QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest split session: %w", err)
	}
	return s, nil
}

// UpdateSplitStatus applies a compare-and-set status transition.
func (r *Repository) UpdateSplitStatus(ctx context.Context, id int64, from []SplitStatus, to SplitStatus, cancelReason *string) (bool, error) {
	states := make([]string, len(from))
	for i, f := range from {
		states[i] = string(f)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE split_sessions
		SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
		WHERE id = $1 AND status = ANY($4)`,
		id, to, cancelReason, pq.Array(states))
	if err != nil {
		return false, fmt.Errorf("failed to update split status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordOutcome applies a compare-and-set contribution transition. The
// paid amount and payment reference are written in the same statement
// so a contribution is never observed paid without them.
func (r *Repository) RecordOutcome(ctx context.Context, contributionID int64, from []ContributionStatus, to ContributionStatus, amountPaid money.Cents, paymentRef *string) (bool, error) {
	states := make([]string, len(from))
	for i, f := range from {
		states[i] = string(f)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE contributions
		SET status = $2, amount_paid = $3, payment_ref = COALESCE($4, payment_ref), updated_at = now()
		WHERE id = $1 AND status = ANY($5)`,
		contributionID, to, amountPaid, paymentRef, pq.Array(states))
	if err != nil {
		return false, fmt.Errorf("failed to record payment outcome: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TouchSplit bumps the split's activity timestamp.
func (r *Repository) TouchSplit(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE split_sessions SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch split session: %w", err)
	}
	return nil
}

// StaleSplits returns non-terminal splits untouched since the cutoff.
func (r *Repository) StaleSplits(ctx context.Context, cutoff time.Time) ([]*SplitSession, error) {
	query := `SELECT ` + splitColumns + ` FROM split_sessions
		WHERE status IN ('open', 'partially_settled') AND updated_at <= $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale split sessions: %w", err)
	}
	defer rows.Close()

	var out []*SplitSession
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan split session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UnresolvedSplitCount counts the session's non-terminal splits.
func (r *Repository) UnresolvedSplitCount(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM split_sessions
		WHERE table_session_id = $1 AND status IN ('open', 'partially_settled')`,
		sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved split sessions: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSplit(row rowScanner) (*SplitSession, error) {
	var s SplitSession
	err := row.Scan(&s.ID, &s.TableSessionID, &s.Strategy, &s.BaseAmount, &s.TipAmount,
		&s.TipStrategy, &s.Status, &s.CancelReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanContribution(row rowScanner) (*Contribution, error) {
	var c Contribution
	err := row.Scan(&c.ID, &c.SplitSessionID, &c.ParticipantID, &c.AmountDue, &c.AmountPaid,
		&c.PaymentRef, &c.Status, &c.PaidByParticipantID, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
