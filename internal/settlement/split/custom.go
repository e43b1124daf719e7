package split

import "github.com/tablesplit/tablesplit/pkg/money"

// CustomStrategy uses explicitly negotiated amounts. Every participant
// must be assigned an amount and the amounts must sum exactly to the
// base; there is no rounding to hide behind.
type CustomStrategy struct{}

// Type returns the split type identifier
func (s *CustomStrategy) Type() Type {
	return TypeCustom
}

// Validate checks that the custom amounts cover every participant and
// sum exactly to the base amount
func (s *CustomStrategy) Validate(in Input) error {
	if err := validateCommon(in); err != nil {
		return err
	}

	members := make(map[int64]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		members[p.ID] = struct{}{}
	}
	return validateAmounts(in.Custom, members, in.Base, ErrSplitMismatch)
}

// Calculate returns the negotiated amounts plus each tip share.
func (s *CustomStrategy) Calculate(in Input) ([]Share, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	byID := make(map[int64]money.Cents, len(in.Custom))
	for _, a := range in.Custom {
		byID[a.ParticipantID] = a.Amount
	}

	base := make([]money.Cents, len(in.Participants))
	for i, p := range in.Participants {
		base[i] = byID[p.ID]
	}
	return combine(in, base)
}
