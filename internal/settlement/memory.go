package settlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tablesplit/tablesplit/pkg/money"
)

// MemoryStore is an in-memory Store used in tests and when no database
// is configured.
type MemoryStore struct {
	mu            sync.Mutex
	splits        map[int64]*SplitSession
	contributions map[int64]*Contribution
	nextID        int64
}

// NewMemoryStore creates an empty in-memory settlement store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		splits:        make(map[int64]*SplitSession),
		contributions: make(map[int64]*Contribution),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateSplit stores the split and its contributions in one step.
func (m *MemoryStore) CreateSplit(ctx context.Context, s *SplitSession, contributions []*Contribution) (*SplitSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *s
	stored.ID = m.id()
	m.splits[stored.ID] = &stored

	for _, c := range contributions {
		c.ID = m.id()
		c.SplitSessionID = stored.ID
		copied := *c
		m.contributions[copied.ID] = &copied
	}

	out := stored
	return &out, nil
}

// GetSplit returns the split or nil when absent.
func (m *MemoryStore) GetSplit(ctx context.Context, id int64) (*SplitSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.splits[id]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

// ContributionsBySplit returns the split's contributions ordered by ID,
// which preserves participant join order from creation.
func (m *MemoryStore) ContributionsBySplit(ctx context.Context, splitID int64) ([]*Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Contribution
	for _, c := range m.contributions {
		if c.SplitSessionID == splitID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetContribution returns one participant's contribution in a split, or
// nil when absent.
func (m *MemoryStore) GetContribution(ctx context.Context, splitID, participantID int64) (*Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.contributions {
		if c.SplitSessionID == splitID && c.ParticipantID == participantID {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

// NonTerminalSplitBySession returns the open or partially settled split
// for the session, or nil.
func (m *MemoryStore) NonTerminalSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.splits {
		if s.TableSessionID == sessionID && !s.Status.Terminal() {
			out := *s
			return &out, nil
		}
	}
	return nil, nil
}

// LatestSplitBySession returns the most recently created split for the
// session, or nil.
func (m *MemoryStore) LatestSplitBySession(ctx context.Context, sessionID int64) (*SplitSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *SplitSession
	for _, s := range m.splits {
		if s.TableSessionID != sessionID {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// UpdateSplitStatus applies a compare-and-set status transition.
func (m *MemoryStore) UpdateSplitStatus(ctx context.Context, id int64, from []SplitStatus, to SplitStatus, cancelReason *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.splits[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			s.CancelReason = cancelReason
			s.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

// RecordOutcome applies a compare-and-set contribution transition,
// setting the paid amount and payment reference in the same step.
func (m *MemoryStore) RecordOutcome(ctx context.Context, contributionID int64, from []ContributionStatus, to ContributionStatus, amountPaid money.Cents, paymentRef *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contributions[contributionID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			c.AmountPaid = amountPaid
			if paymentRef != nil {
				c.PaymentRef = paymentRef
			}
			c.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

// TouchSplit bumps the split's activity timestamp.
func (m *MemoryStore) TouchSplit(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.splits[id]; ok {
		s.UpdatedAt = at
	}
	return nil
}

// StaleSplits returns non-terminal splits untouched since the cutoff.
func (m *MemoryStore) StaleSplits(ctx context.Context, cutoff time.Time) ([]*SplitSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*SplitSession
	for _, s := range m.splits {
		if !s.Status.Terminal() && !s.UpdatedAt.After(cutoff) {
			copied := *s
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UnresolvedSplitCount counts the session's non-terminal splits.
func (m *MemoryStore) UnresolvedSplitCount(ctx context.Context, sessionID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, s := range m.splits {
		if s.TableSessionID == sessionID && !s.Status.Terminal() {
			count++
		}
	}
	return count, nil
}
