// Package bill assembles the staff-facing view of a table: who is
// seated, what they ordered, and how far settlement has progressed. It
// is purely derived state, recomputed on every call.
package bill

import (
	"context"
	"errors"

	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/internal/settlement"
	"github.com/tablesplit/tablesplit/pkg/money"
)

var ErrSessionNotFound = errors.New("table session not found")

// SessionSource is the slice of the session store the summary reads.
type SessionSource interface {
	GetSession(ctx context.Context, id int64) (*session.TableSession, error)
	ParticipantsBySession(ctx context.Context, sessionID int64) ([]*session.Participant, error)
}

// OrderSource is the slice of the order store the summary reads.
type OrderSource interface {
	OrdersBySession(ctx context.Context, sessionID int64) ([]*order.Order, error)
}

// SplitSource is the slice of the settlement store the summary reads.
type SplitSource interface {
	LatestSplitBySession(ctx context.Context, sessionID int64) (*settlement.SplitSession, error)
	ContributionsBySplit(ctx context.Context, splitID int64) ([]*settlement.Contribution, error)
}

// Service builds group bill summaries.
type Service struct {
	sessions SessionSource
	orders   OrderSource
	splits   SplitSource
}

// NewService creates a bill service with its read sources injected.
func NewService(sessions SessionSource, orders OrderSource, splits SplitSource) *Service {
	return &Service{
		sessions: sessions,
		orders:   orders,
		splits:   splits,
	}
}

// Summarize aggregates a table session into a single staff view: every
// participant with their orders and, when a settlement round exists,
// each participant's payment standing against the most recent split.
func (s *Service) Summarize(ctx context.Context, sessionID int64) (*Summary, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}

	participants, err := s.sessions.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.OrdersBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	latest, err := s.splits.LatestSplitBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var contributions []*settlement.Contribution
	if latest != nil {
		contributions, err = s.splits.ContributionsBySplit(ctx, latest.ID)
		if err != nil {
			return nil, err
		}
	}

	return buildSummary(sess, participants, orders, latest, contributions), nil
}

func buildSummary(
	sess *session.TableSession,
	participants []*session.Participant,
	orders []*order.Order,
	latest *settlement.SplitSession,
	contributions []*settlement.Contribution,
) *Summary {
	ordersByOwner := make(map[int64][]*order.Order)
	var grandTotal money.Cents
	for _, o := range orders {
		ordersByOwner[o.OwnerParticipantID] = append(ordersByOwner[o.OwnerParticipantID], o)
		if o.Status != order.StatusCancelled {
			grandTotal += o.TotalAmount
		}
	}

	contributionByParticipant := make(map[int64]*settlement.Contribution, len(contributions))
	for _, c := range contributions {
		contributionByParticipant[c.ParticipantID] = c
	}

	summary := &Summary{
		Session:    sess,
		GrandTotal: grandTotal,
		Split:      latest,
	}
	for _, p := range participants {
		line := ParticipantLine{
			Participant:  p,
			Orders:       ordersByOwner[p.ID],
			Contribution: contributionByParticipant[p.ID],
		}
		for _, o := range line.Orders {
			if o.Status != order.StatusCancelled {
				line.OrderTotal += o.TotalAmount
			}
		}
		summary.Participants = append(summary.Participants, line)
	}
	return summary
}

// Summary is the assembled group bill.
type Summary struct {
	Session      *session.TableSession
	Participants []ParticipantLine
	GrandTotal   money.Cents
	Split        *settlement.SplitSession
}

// ParticipantLine is one participant's row in the summary. Contribution
// is nil when no settlement round has been created yet.
type ParticipantLine struct {
	Participant  *session.Participant
	Orders       []*order.Order
	OrderTotal   money.Cents
	Contribution *settlement.Contribution
}
