package split

// GiftStrategy starts from a per-item split and then lets participants
// cover each other's shares. A gifted share is waived: the recipient owes
// nothing and the giver's obligation grows by the recipient's base and
// tip. Gifts cannot chain, so a giver is never themselves gifted and a
// share is gifted at most once.
type GiftStrategy struct{}

// Type returns the split type identifier
func (s *GiftStrategy) Type() Type {
	return TypeGift
}

// Validate checks the gift graph on top of the per-item constraints
func (s *GiftStrategy) Validate(in Input) error {
	if err := validateCommon(in); err != nil {
		return err
	}

	members := make(map[int64]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		members[p.ID] = struct{}{}
	}

	givers := make(map[int64]struct{}, len(in.Gifts))
	recipients := make(map[int64]struct{}, len(in.Gifts))
	for _, g := range in.Gifts {
		if _, ok := members[g.GiverID]; !ok {
			return ErrUnknownParticipant
		}
		if _, ok := members[g.RecipientID]; !ok {
			return ErrUnknownParticipant
		}
		if g.GiverID == g.RecipientID {
			return ErrSelfGift
		}
		if _, dup := recipients[g.RecipientID]; dup {
			return ErrGiftChain
		}
		givers[g.GiverID] = struct{}{}
		recipients[g.RecipientID] = struct{}{}
	}
	for r := range recipients {
		if _, alsoGives := givers[r]; alsoGives {
			return ErrGiftChain
		}
	}
	return nil
}

// Calculate produces the per-item shares and then moves each gifted
// share onto its giver.
func (s *GiftStrategy) Calculate(in Input) ([]Share, error) {
	if err := s.Validate(in); err != nil {
		return nil, err
	}

	shares, err := (&PerItemStrategy{}).Calculate(in)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(shares))
	for i, sh := range shares {
		index[sh.ParticipantID] = i
	}

	for _, g := range in.Gifts {
		giver := &shares[index[g.GiverID]]
		recipient := &shares[index[g.RecipientID]]

		giver.AmountDue += recipient.AmountDue
		recipient.AmountDue = 0
		recipient.Waived = true
		recipient.PaidBy = &g.GiverID
	}
	return shares, nil
}
