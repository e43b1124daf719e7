package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tablesplit/tablesplit/internal/config"
	"github.com/tablesplit/tablesplit/internal/fantasy"
	"github.com/tablesplit/tablesplit/internal/locker"
	"github.com/tablesplit/tablesplit/internal/notify"
)

// Common errors
var (
	ErrSessionNotFound      = errors.New("table session not found")
	ErrSessionEnded         = errors.New("table session has ended")
	ErrTableOccupied        = errors.New("table already has an active session")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantLeft      = errors.New("participant has already left")
	ErrNameTaken            = errors.New("fantasy name is already taken in this session")
	ErrNameEmpty            = errors.New("fantasy name cannot be empty")
	ErrOwnsOpenOrders       = errors.New("participant still owns open orders")
	ErrSessionNotSettleable = errors.New("session has open orders or unresolved split sessions")
)

// Service owns the lifecycle of table sessions and their participant lists.
// All participant mutations for one session are serialized through the
// session lock so concurrent joins cannot claim the same fantasy name.
type Service struct {
	store        Store
	names        *fantasy.Allocator
	locks        *locker.SessionLocker
	orders       OrderDirectory
	settlements  SettlementDirectory
	notifier     notify.Notifier
	orphanPolicy config.OrphanOrderPolicy
}

// NewService creates a session service with its collaborators injected.
func NewService(
	store Store,
	names *fantasy.Allocator,
	locks *locker.SessionLocker,
	orders OrderDirectory,
	settlements SettlementDirectory,
	notifier notify.Notifier,
	orphanPolicy config.OrphanOrderPolicy,
) *Service {
	return &Service{
		store:        store,
		names:        names,
		locks:        locks,
		orders:       orders,
		settlements:  settlements,
		notifier:     notifier,
		orphanPolicy: orphanPolicy,
	}
}

// CheckIn opens a table session for the given table, or returns the existing
// active one when joinExisting is set. A second check-in without joinExisting
// is a conflict.
func (s *Service) CheckIn(ctx context.Context, tableID int64, joinExisting bool) (*TableSession, error) {
	existing, err := s.store.ActiveSessionByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if joinExisting {
			return existing, nil
		}
		return nil, ErrTableOccupied
	}

	sess, err := s.store.CreateSession(ctx, tableID)
	if err != nil {
		// Two concurrent check-ins can race past the lookup; the store's
		// uniqueness constraint decides the winner.
		if errors.Is(err, ErrDuplicateActiveSession) {
			if joinExisting {
				return s.store.ActiveSessionByTable(ctx, tableID)
			}
			return nil, ErrTableOccupied
		}
		return nil, err
	}
	return sess, nil
}

// GetSession retrieves a table session with its participants.
func (s *Service) GetSession(ctx context.Context, id int64) (*TableSession, []*Participant, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, ErrSessionNotFound
	}
	participants, err := s.store.ParticipantsBySession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, participants, nil
}

// Join registers a diner in an active session. When no name is requested one
// is drawn from the fantasy allocator; a requested name must be unique among
// the session's active participants (case-insensitive, trimmed).
func (s *Service) Join(ctx context.Context, sessionID int64, userID *int64, requestedName string) (*Participant, error) {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		return nil, ErrSessionEnded
	}

	taken, err := s.activeNames(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(requestedName)
	if name == "" {
		name = s.names.Allocate(taken)
	} else if _, exists := taken[fantasy.Normalize(name)]; exists {
		return nil, ErrNameTaken
	}

	participant, err := s.store.CreateParticipant(ctx, sessionID, userID, name)
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(notify.Event{
		Type:      notify.EventParticipantJoined,
		SessionID: sessionID,
		Data:      participant,
	})
	return participant, nil
}

// Rename changes a participant's fantasy name, with the same uniqueness rule
// as Join.
func (s *Service) Rename(ctx context.Context, participantID int64, newName string) (*Participant, error) {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}

	release, err := s.locks.Acquire(ctx, participant.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock: the participant may have left meanwhile.
	participant, err = s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}
	if !participant.Active() {
		return nil, ErrParticipantLeft
	}

	name := strings.TrimSpace(newName)
	if name == "" {
		return nil, ErrNameEmpty
	}

	taken, err := s.activeNames(ctx, participant.SessionID, participantID)
	if err != nil {
		return nil, err
	}
	if _, exists := taken[fantasy.Normalize(name)]; exists {
		return nil, ErrNameTaken
	}

	if err := s.store.RenameParticipant(ctx, participantID, name); err != nil {
		return nil, err
	}
	participant.FantasyName = name
	return participant, nil
}

// Leave soft-removes a participant. Open orders they own are either
// reassigned to the session creator (orphan policy "creator") or block the
// leave (policy "block"). Orders are never deleted.
func (s *Service) Leave(ctx context.Context, participantID int64) error {
	participant, err := s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant == nil {
		return ErrParticipantNotFound
	}

	release, err := s.locks.Acquire(ctx, participant.SessionID)
	if err != nil {
		return err
	}
	defer release()

	participant, err = s.store.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if participant == nil {
		return ErrParticipantNotFound
	}
	if !participant.Active() {
		return ErrParticipantLeft
	}

	open, err := s.orders.OpenOrderCountByOwner(ctx, participantID)
	if err != nil {
		return err
	}
	if open > 0 {
		if s.orphanPolicy == config.OrphanPolicyBlock {
			return ErrOwnsOpenOrders
		}
		fallback, err := s.fallbackOwner(ctx, participant)
		if err != nil {
			return err
		}
		if _, err := s.orders.ReassignOpenOrders(ctx, participantID, fallback.ID); err != nil {
			return err
		}
	}

	if err := s.store.MarkLeft(ctx, participantID, time.Now().UTC()); err != nil {
		return err
	}

	s.notifier.Publish(notify.Event{
		Type:      notify.EventParticipantLeft,
		SessionID: participant.SessionID,
		Data:      participant,
	})
	return nil
}

// EndSession closes a table session. It fails while any order is still
// non-terminal or any split session is unresolved.
func (s *Service) EndSession(ctx context.Context, sessionID int64) (*TableSession, error) {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.endLocked(ctx, sessionID, false)
}

// EndIfSettleable is the settlement coordinator's hook: after the last
// contribution is paid it attempts to close the session, quietly doing
// nothing when orders are still in flight.
func (s *Service) EndIfSettleable(ctx context.Context, sessionID int64) {
	release, err := s.locks.Acquire(ctx, sessionID)
	if err != nil {
		return
	}
	defer release()

	s.endLocked(ctx, sessionID, true)
}

func (s *Service) endLocked(ctx context.Context, sessionID int64, quiet bool) (*TableSession, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		if quiet {
			return sess, nil
		}
		return nil, ErrSessionEnded
	}

	open, err := s.orders.OpenOrderCountBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	unresolved, err := s.settlements.UnresolvedSplitCount(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if open > 0 || unresolved > 0 {
		if quiet {
			return sess, nil
		}
		return nil, ErrSessionNotSettleable
	}

	now := time.Now().UTC()
	if err := s.store.EndSession(ctx, sessionID, now); err != nil {
		return nil, err
	}
	sess.EndedAt = &now
	sess.IsActive = false

	s.notifier.Publish(notify.Event{
		Type:      notify.EventSessionEnded,
		SessionID: sessionID,
		Data:      sess,
	})
	return sess, nil
}

// activeNames collects normalized fantasy names of active participants,
// excluding one participant when exclude is non-zero.
func (s *Service) activeNames(ctx context.Context, sessionID, exclude int64) (map[string]struct{}, error) {
	participants, err := s.store.ParticipantsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if p.Active() && p.ID != exclude {
			names[fantasy.Normalize(p.FantasyName)] = struct{}{}
		}
	}
	return names, nil
}

// fallbackOwner picks the earliest-joined active participant other than the
// one leaving: the session creator, or their stand-in when the creator is
// the one walking out.
func (s *Service) fallbackOwner(ctx context.Context, leaving *Participant) (*Participant, error) {
	participants, err := s.store.ParticipantsBySession(ctx, leaving.SessionID)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.Active() && p.ID != leaving.ID {
			return p, nil
		}
	}
	return nil, ErrOwnsOpenOrders
}
