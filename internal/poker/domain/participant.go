package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role describes how a participant takes part in a round.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleVoter indicates a participant whose cards count toward statistics.
	RoleVoter
	// RoleSpectator indicates a participant who observes without voting.
	RoleSpectator
)

var (
	// ErrEmptyDisplayName indicates a missing participant display name.
	ErrEmptyDisplayName = errors.New("participant display name is required")
	// ErrInvalidRole indicates a missing or invalid participant role.
	ErrInvalidRole = errors.New("participant role is required")
	// ErrInvalidAvatar indicates an avatar id outside the pool.
	ErrInvalidAvatar = errors.New("avatar id is not in the pool")
)

// Participant represents one occupant of a session. The zero Card value
// means no vote is recorded; AvatarNone means no avatar is held. Connected
// reflects live-socket presence, not membership.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	Vote        Card
	Avatar      AvatarID
	Connected   bool
	JoinedAt    time.Time
}

// CreateParticipantInput describes the metadata needed to create a participant.
type CreateParticipantInput struct {
	ID          string
	DisplayName string
	Role        Role
	Avatar      AvatarID
}

// CreateParticipant creates a participant, generating an id when none is
// supplied. New participants join connected with no vote recorded.
func CreateParticipant(input CreateParticipantInput, now func() time.Time, idGenerator func() (string, error)) (Participant, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = NewID
	}

	normalized, err := NormalizeCreateParticipantInput(input)
	if err != nil {
		return Participant{}, err
	}

	participantID := normalized.ID
	if participantID == "" {
		participantID, err = idGenerator()
		if err != nil {
			return Participant{}, fmt.Errorf("generate participant id: %w", err)
		}
	}

	return Participant{
		ID:          participantID,
		DisplayName: normalized.DisplayName,
		Role:        normalized.Role,
		Avatar:      normalized.Avatar,
		Connected:   true,
		JoinedAt:    now().UTC(),
	}, nil
}

// NormalizeCreateParticipantInput trims and validates participant input.
func NormalizeCreateParticipantInput(input CreateParticipantInput) (CreateParticipantInput, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	if input.DisplayName == "" {
		return CreateParticipantInput{}, ErrEmptyDisplayName
	}
	if input.Role != RoleVoter && input.Role != RoleSpectator {
		return CreateParticipantInput{}, ErrInvalidRole
	}
	if input.Avatar != AvatarNone && !input.Avatar.IsValid() {
		return CreateParticipantInput{}, ErrInvalidAvatar
	}
	return input, nil
}

// WithVote records a vote on the participant. Spectators never carry votes,
// so for a spectator this is a no-op rather than a failure.
func (p Participant) WithVote(card Card) Participant {
	if p.Role != RoleVoter {
		return p
	}
	p.Vote = card
	return p
}

// WithoutVote clears any recorded vote.
func (p Participant) WithoutVote() Participant {
	p.Vote = ""
	return p
}

// WithConnected sets the live-socket presence flag.
func (p Participant) WithConnected(connected bool) Participant {
	p.Connected = connected
	return p
}

// ToggledRole flips the participant between voter and spectator. Any
// recorded vote is cleared so a spectator never holds a stale vote.
func (p Participant) ToggledRole() Participant {
	if p.Role == RoleVoter {
		p.Role = RoleSpectator
	} else {
		p.Role = RoleVoter
	}
	p.Vote = ""
	return p
}

// HasVoted reports whether a vote is recorded.
func (p Participant) HasVoted() bool {
	return p.Vote != ""
}
