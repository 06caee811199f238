package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RoundState describes the state of a session's current round.
type RoundState int

const (
	// RoundStateUnspecified represents an invalid round state value.
	RoundStateUnspecified RoundState = iota
	// RoundStateVoting indicates votes may be cast or changed.
	RoundStateVoting
	// RoundStateRevealed indicates votes are frozen until a reset.
	RoundStateRevealed
)

var (
	// ErrEmptySessionName indicates a missing session name.
	ErrEmptySessionName = errors.New("session name is required")
	// ErrInvalidCard indicates a card that does not belong to the session's deck.
	ErrInvalidCard = errors.New("card is not in the session's deck")
	// ErrAlreadyRevealed indicates a vote attempted after the round was revealed.
	ErrAlreadyRevealed = errors.New("round is already revealed")
)

// Session is the aggregate for one planning-poker room: a roster of
// participants, the current round state, and avatar-allocation bookkeeping.
//
// Sessions are immutable per transition: every transition function returns a
// new Session and leaves its input untouched. UsedAvatars is always exactly
// the set of avatars held by current participants.
type Session struct {
	ID           string
	Name         string
	Deck         Deck
	RoundState   RoundState
	StoryLabel   string
	Participants map[string]Participant
	UsedAvatars  map[AvatarID]struct{}
	CreatedAt    time.Time
}

// CreateSessionInput describes the metadata needed to create a session.
type CreateSessionInput struct {
	Name string
	Deck Deck
}

// CreateSession creates a session with an empty roster in voting state.
func CreateSession(input CreateSessionInput, now func() time.Time, idGenerator func() (string, error)) (Session, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewSessionID
	}

	normalized, err := NormalizeCreateSessionInput(input)
	if err != nil {
		return Session{}, err
	}

	sessionID, err := idGenerator()
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}

	return Session{
		ID:           sessionID,
		Name:         normalized.Name,
		Deck:         normalized.Deck,
		RoundState:   RoundStateVoting,
		Participants: map[string]Participant{},
		UsedAvatars:  map[AvatarID]struct{}{},
		CreatedAt:    now().UTC(),
	}, nil
}

// NormalizeCreateSessionInput trims and validates session input metadata.
func NormalizeCreateSessionInput(input CreateSessionInput) (CreateSessionInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return CreateSessionInput{}, ErrEmptySessionName
	}
	if !input.Deck.IsValid() {
		return CreateSessionInput{}, ErrInvalidDeck
	}
	return input, nil
}

// clone copies the session's maps so transitions never mutate their input.
func (s Session) clone() Session {
	participants := make(map[string]Participant, len(s.Participants))
	for id, p := range s.Participants {
		participants[id] = p
	}
	used := make(map[AvatarID]struct{}, len(s.UsedAvatars))
	for a := range s.UsedAvatars {
		used[a] = struct{}{}
	}
	s.Participants = participants
	s.UsedAvatars = used
	return s
}

// AddParticipant inserts the participant into the roster and claims its
// avatar if one is set. The caller must have selected an available avatar
// inside the same critical section; availability is not re-checked here.
func AddParticipant(s Session, p Participant) Session {
	next := s.clone()
	next.Participants[p.ID] = p
	if p.Avatar != AvatarNone {
		next.UsedAvatars[p.Avatar] = struct{}{}
	}
	return next
}

// RemoveParticipant deletes the roster entry and releases its avatar. No-op
// if the id is absent.
func RemoveParticipant(s Session, participantID string) Session {
	p, ok := s.Participants[participantID]
	if !ok {
		return s
	}
	next := s.clone()
	delete(next.Participants, participantID)
	if p.Avatar != AvatarNone {
		delete(next.UsedAvatars, p.Avatar)
	}
	return next
}

// CastVote records a vote for the participant. Changing a vote before the
// reveal is always legal; only the latest vote counts. No-op if the id is
// absent.
func CastVote(s Session, participantID string, card Card) (Session, error) {
	if s.RoundState == RoundStateRevealed {
		return Session{}, ErrAlreadyRevealed
	}
	if !s.Deck.Contains(card) {
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidCard, card)
	}
	p, ok := s.Participants[participantID]
	if !ok {
		return s, nil
	}
	next := s.clone()
	next.Participants[participantID] = p.WithVote(card)
	return next, nil
}

// Reveal transitions the round to revealed. No-op if already revealed.
func Reveal(s Session) Session {
	if s.RoundState == RoundStateRevealed {
		return s
	}
	next := s.clone()
	next.RoundState = RoundStateRevealed
	return next
}

// ResetRound clears every vote and the story label and returns the round to
// voting, regardless of prior state.
func ResetRound(s Session) Session {
	next := s.clone()
	for id, p := range next.Participants {
		next.Participants[id] = p.WithoutVote()
	}
	next.StoryLabel = ""
	next.RoundState = RoundStateVoting
	return next
}

// SetStory sets the story label. An empty label clears it.
func SetStory(s Session, label string) Session {
	next := s.clone()
	next.StoryLabel = strings.TrimSpace(label)
	return next
}

// SetConnected flips the participant's presence flag. No-op if the id is
// absent.
func SetConnected(s Session, participantID string, connected bool) Session {
	p, ok := s.Participants[participantID]
	if !ok {
		return s
	}
	next := s.clone()
	next.Participants[participantID] = p.WithConnected(connected)
	return next
}

// ToggleRole flips the participant between voter and spectator, clearing any
// recorded vote. No-op if the id is absent.
func ToggleRole(s Session, participantID string) Session {
	p, ok := s.Participants[participantID]
	if !ok {
		return s
	}
	next := s.clone()
	next.Participants[participantID] = p.ToggledRole()
	return next
}

// AvailableAvatars returns the pool minus the avatars currently held.
func AvailableAvatars(s Session) []AvatarID {
	available := make([]AvatarID, 0, AvatarPoolSize)
	for _, a := range AvatarPool() {
		if _, used := s.UsedAvatars[a]; !used {
			available = append(available, a)
		}
	}
	return available
}

// AllVotersVoted reports whether every connected voter has a recorded vote.
// False when the session has no connected voters, so an empty room never
// gates a reveal open.
func AllVotersVoted(s Session) bool {
	voters := 0
	for _, p := range s.Participants {
		if p.Role != RoleVoter || !p.Connected {
			continue
		}
		voters++
		if !p.HasVoted() {
			return false
		}
	}
	return voters > 0
}

// AnyVotes reports whether any voter has a recorded vote.
func AnyVotes(s Session) bool {
	for _, p := range s.Participants {
		if p.Role == RoleVoter && p.HasVoted() {
			return true
		}
	}
	return false
}
