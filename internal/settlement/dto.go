package settlement

import (
	"time"

	"github.com/tablesplit/tablesplit/internal/settlement/split"
	"github.com/tablesplit/tablesplit/pkg/money"
)

// CreateSplitRequest opens a settlement round for a table session.
type CreateSplitRequest struct {
	TableSessionID int64                `json:"table_session_id"`
	Strategy       string               `json:"strategy"`
	TipAmountCents money.Cents          `json:"tip_amount_cents"`
	TipStrategy    string               `json:"tip_strategy"`
	Custom         []split.CustomAmount `json:"custom_amounts,omitempty"`
	CustomTips     []split.CustomAmount `json:"custom_tips,omitempty"`
	Gifts          []split.Gift         `json:"gifts,omitempty"`
}

// RecordPaymentRequest reports a payment outcome from the provider.
type RecordPaymentRequest struct {
	ParticipantID int64  `json:"participant_id"`
	Outcome       string `json:"outcome"`
	PaymentRef    string `json:"payment_ref"`
}

// PayRequest charges the acting participant's contribution.
type PayRequest struct {
	ParticipantID int64  `json:"participant_id,omitempty"`
	Method        string `json:"method"`
}

// CancelSplitRequest abandons a settlement round.
type CancelSplitRequest struct {
	Reason string `json:"reason"`
}

// SplitResponse is the API shape of a split session.
type SplitResponse struct {
	ID             int64                  `json:"id"`
	TableSessionID int64                  `json:"table_session_id"`
	Strategy       string                 `json:"strategy"`
	BaseAmount     money.Cents            `json:"base_amount_cents"`
	TipAmount      money.Cents            `json:"tip_amount_cents"`
	TipStrategy    string                 `json:"tip_strategy"`
	Status         string                 `json:"status"`
	CancelReason   *string                `json:"cancel_reason,omitempty"`
	CreatedAt      string                 `json:"created_at"`
	Contributions  []ContributionResponse `json:"contributions,omitempty"`
}

// ContributionResponse is the API shape of a contribution.
type ContributionResponse struct {
	ID                  int64       `json:"id"`
	ParticipantID       int64       `json:"participant_id"`
	AmountDue           money.Cents `json:"amount_due_cents"`
	AmountPaid          money.Cents `json:"amount_paid_cents"`
	PaymentRef          *string     `json:"payment_ref,omitempty"`
	Status              string      `json:"status"`
	PaidByParticipantID *int64      `json:"paid_by_participant_id,omitempty"`
}

// ToResponse converts the split and its contributions to the API shape.
func (s *SplitSession) ToResponse(contributions []*Contribution) SplitResponse {
	resp := SplitResponse{
		ID:             s.ID,
		TableSessionID: s.TableSessionID,
		Strategy:       string(s.Strategy),
		BaseAmount:     s.BaseAmount,
		TipAmount:      s.TipAmount,
		TipStrategy:    string(s.TipStrategy),
		Status:         string(s.Status),
		CancelReason:   s.CancelReason,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
	}
	for _, c := range contributions {
		resp.Contributions = append(resp.Contributions, c.ToResponse())
	}
	return resp
}

// ToResponse converts the contribution to the API shape.
func (c *Contribution) ToResponse() ContributionResponse {
	return ContributionResponse{
		ID:                  c.ID,
		ParticipantID:       c.ParticipantID,
		AmountDue:           c.AmountDue,
		AmountPaid:          c.AmountPaid,
		PaymentRef:          c.PaymentRef,
		Status:              string(c.Status),
		PaidByParticipantID: c.PaidByParticipantID,
	}
}
