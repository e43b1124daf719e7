package bill

import (
	"github.com/tablesplit/tablesplit/internal/order"
	"github.com/tablesplit/tablesplit/internal/session"
	"github.com/tablesplit/tablesplit/internal/settlement"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// SummaryResponse is the API shape of a group bill summary.
type SummaryResponse struct {
	Session         *session.SessionResponse          `json:"session"`
	Participants    []ParticipantLineResponse         `json:"participants"`
	GrandTotalCents money.Cents                       `json:"grand_total_cents"`
	Split           *settlement.SplitResponse         `json:"split,omitempty"`
}

// ParticipantLineResponse is one participant's row in the summary.
type ParticipantLineResponse struct {
	Participant     *session.ParticipantResponse     `json:"participant"`
	Orders          []*order.OrderResponse           `json:"orders,omitempty"`
	OrderTotalCents money.Cents                      `json:"order_total_cents"`
	Contribution    *settlement.ContributionResponse `json:"contribution,omitempty"`
}

// ToResponse converts the summary to the API shape.
func (s *Summary) ToResponse() SummaryResponse {
	resp := SummaryResponse{
		Session:         s.Session.ToResponse(),
		GrandTotalCents: s.GrandTotal,
	}
	if s.Split != nil {
		split := s.Split.ToResponse(nil)
		resp.Split = &split
	}
	for _, line := range s.Participants {
		lr := ParticipantLineResponse{
			Participant:     line.Participant.ToResponse(),
			OrderTotalCents: line.OrderTotal,
		}
		for _, o := range line.Orders {
			lr.Orders = append(lr.Orders, o.ToResponse())
		}
		if line.Contribution != nil {
			c := line.Contribution.ToResponse()
			lr.Contribution = &c
		}
		resp.Participants = append(resp.Participants, lr)
	}
	return resp
}
