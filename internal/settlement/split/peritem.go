package split

import "github.com/tablesplit/tablesplit/pkg/money"

// PerItemStrategy makes each participant pay for what they ordered. The
// base is allocated proportionally to confirmed order totals, so shared
// charges that push the base past the order sum are spread fairly; when
// the base equals the order sum everyone pays exactly their own total.
type PerItemStrategy struct{}

// Type returns the split type identifier
func (s *PerItemStrategy) Type() Type {
	return TypePerItem
}

// Validate checks if the input is valid for a per-item split
func (s *PerItemStrategy) Validate(in Input) error {
	return validateCommon(in)
}

// Calculate allocates the base by order totals and adds the tip shares.
// Participants with no orders owe nothing for the base unless every
// order total is zero, in which case the base falls back to an even split.
func (s *PerItemStrategy) Calculate(in Input) ([]Share, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	base, err := money.Allocate(in.Base, orderTotals(in))
	if err != nil {
		return nil, err
	}
	return combine(in, base)
}
