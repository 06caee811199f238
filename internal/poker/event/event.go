// Package event defines the broadcast events a session actor emits after
// every committed mutation, together with their JSON payload shapes.
//
// Events are ephemeral notifications, not a journal: delivery is best-effort
// to currently-subscribed observers, and a reconnecting observer pulls a
// fresh snapshot instead of replaying missed events.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the type of a session event.
type Type string

// Participant events.
const (
	// TypeParticipantJoined records a participant joining a session.
	TypeParticipantJoined Type = "participant.joined"
	// TypeParticipantLeft records a participant leaving a session.
	TypeParticipantLeft Type = "participant.left"
	// TypeParticipantConnected records a participant's socket coming up.
	TypeParticipantConnected Type = "participant.connected"
	// TypeParticipantDisconnected records a participant's socket going away.
	TypeParticipantDisconnected Type = "participant.disconnected"
	// TypeRoleToggled records a participant flipping between voter and spectator.
	TypeRoleToggled Type = "participant.role_toggled"
)

// Round events.
const (
	// TypeVoteCast records a vote being recorded or changed.
	TypeVoteCast Type = "round.vote_cast"
	// TypeVotesRevealed records the voting-to-revealed transition.
	TypeVotesRevealed Type = "round.votes_revealed"
	// TypeRoundReset records a round reset.
	TypeRoundReset Type = "round.reset"
	// TypeStoryChanged records the story label being set or cleared.
	TypeStoryChanged Type = "round.story_changed"
)

// Event is one broadcast notification scoped to a session topic.
type Event struct {
	// SessionID is the session this event belongs to.
	SessionID string
	// Type identifies the kind of event.
	Type Type
	// Timestamp is when the mutation was committed.
	Timestamp time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "participant").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// New builds an event with the payload marshaled to JSON.
func New(sessionID string, eventType Type, timestamp time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		SessionID:   sessionID,
		Type:        eventType,
		Timestamp:   timestamp.UTC(),
		PayloadJSON: data,
	}, nil
}
