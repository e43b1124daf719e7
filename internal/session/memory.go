package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local development and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	sessions     map[int64]*TableSession
	participants map[int64]*Participant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[int64]*TableSession),
		participants: make(map[int64]*Participant),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// CreateSession implements Store.
func (m *MemoryStore) CreateSession(ctx context.Context, tableID int64) (*TableSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.TableID == tableID && s.IsActive {
			return nil, ErrDuplicateActiveSession
		}
	}

	sess := &TableSession{
		ID:        m.id(),
		TableID:   tableID,
		StartedAt: time.Now().UTC(),
		IsActive:  true,
	}
	m.sessions[sess.ID] = sess
	out := *sess
	return &out, nil
}

// GetSession implements Store.
func (m *MemoryStore) GetSession(ctx context.Context, id int64) (*TableSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	out := *sess
	return &out, nil
}

// ActiveSessionByTable implements Store.
func (m *MemoryStore) ActiveSessionByTable(ctx context.Context, tableID int64) (*TableSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.TableID == tableID && s.IsActive {
			out := *s
			return &out, nil
		}
	}
	return nil, nil
}

// EndSession implements Store.
func (m *MemoryStore) EndSession(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[id]; ok && sess.IsActive {
		ended := at
		sess.EndedAt = &ended
		sess.IsActive = false
	}
	return nil
}

// CreateParticipant implements Store.
func (m *MemoryStore) CreateParticipant(ctx context.Context, sessionID int64, userID *int64, name string) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participant := &Participant{
		ID:          m.id(),
		SessionID:   sessionID,
		UserID:      userID,
		FantasyName: name,
		JoinedAt:    time.Now().UTC(),
	}
	m.participants[participant.ID] = participant
	out := *participant
	return &out, nil
}

// GetParticipant implements Store.
func (m *MemoryStore) GetParticipant(ctx context.Context, id int64) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participant, ok := m.participants[id]
	if !ok {
		return nil, nil
	}
	out := *participant
	return &out, nil
}

// ParticipantsBySession implements Store. Join order equals ID order because
// IDs are allocated monotonically.
func (m *MemoryStore) ParticipantsBySession(ctx context.Context, sessionID int64) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var participants []*Participant
	for _, p := range m.participants {
		if p.SessionID == sessionID {
			out := *p
			participants = append(participants, &out)
		}
	}
	sortParticipants(participants)
	return participants, nil
}

// RenameParticipant implements Store.
func (m *MemoryStore) RenameParticipant(ctx context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.participants[id]; ok {
		p.FantasyName = name
	}
	return nil
}

// MarkLeft implements Store.
func (m *MemoryStore) MarkLeft(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.participants[id]; ok && p.LeftAt == nil {
		left := at
		p.LeftAt = &left
	}
	return nil
}

func sortParticipants(participants []*Participant) {
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].ID < participants[j].ID
	})
}
