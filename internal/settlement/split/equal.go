package split

import "github.com/tablesplit/tablesplit/pkg/money"

// EqualStrategy divides the base amount evenly among all participants.
// Leftover cents from the division go to the earliest-joined diners.
type EqualStrategy struct{}

// Type returns the split type identifier
func (s *EqualStrategy) Type() Type {
	return TypeEqual
}

// Validate checks if the input is valid for an equal split
func (s *EqualStrategy) Validate(in Input) error {
	return validateCommon(in)
}

// Calculate divides the base evenly and adds each participant's tip share.
func (s *EqualStrategy) Calculate(in Input) ([]Share, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	base, err := money.SplitEven(in.Base, len(in.Participants))
	if err != nil {
		return nil, err
	}
	return combine(in, base)
}
