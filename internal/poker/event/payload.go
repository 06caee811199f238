package event

import (
	"sort"
	"time"

	"github.com/louisbranch/pointing.space/internal/poker/domain"
)

// ParticipantSnapshot is the wire representation of a participant.
type ParticipantSnapshot struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	HasVoted    bool      `json:"has_voted"`
	Vote        string    `json:"vote,omitempty"`
	Avatar      int       `json:"avatar,omitempty"`
	AvatarAsset string    `json:"avatar_asset,omitempty"`
	Connected   bool      `json:"connected"`
	JoinedAt    time.Time `json:"joined_at"`
}

// VoteCountSnapshot is one entry of a revealed vote distribution.
type VoteCountSnapshot struct {
	Card  string `json:"card"`
	Count int    `json:"count"`
}

// StatisticsSnapshot is the wire representation of round statistics.
// Average is null when no numeric vote exists.
type StatisticsSnapshot struct {
	Average      *float64            `json:"average"`
	Distribution []VoteCountSnapshot `json:"distribution"`
}

// SessionSnapshot is the wire representation of a full session. Statistics
// are present only once the round is revealed.
type SessionSnapshot struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	Deck             string                `json:"deck"`
	Cards            []string              `json:"cards"`
	RoundState       string                `json:"round_state"`
	StoryLabel       string                `json:"story_label,omitempty"`
	Participants     []ParticipantSnapshot `json:"participants"`
	AvailableAvatars []int                 `json:"available_avatars"`
	Statistics       *StatisticsSnapshot   `json:"statistics,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// ParticipantJoinedPayload captures the payload for participant.joined events.
type ParticipantJoinedPayload struct {
	Participant ParticipantSnapshot `json:"participant"`
}

// ParticipantLeftPayload captures the payload for participant.left events.
type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
}

// ParticipantConnectedPayload captures the payload for participant.connected events.
type ParticipantConnectedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// ParticipantDisconnectedPayload captures the payload for participant.disconnected events.
type ParticipantDisconnectedPayload struct {
	ParticipantID string `json:"participant_id"`
}

// RoleToggledPayload captures the payload for participant.role_toggled events.
type RoleToggledPayload struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// VoteCastPayload captures the payload for round.vote_cast events. The card
// itself is intentionally absent: votes stay hidden until the reveal.
type VoteCastPayload struct {
	ParticipantID string `json:"participant_id"`
}

// VotesRevealedPayload captures the payload for round.votes_revealed events.
type VotesRevealedPayload struct {
	Session SessionSnapshot `json:"session"`
}

// RoundResetPayload captures the payload for round.reset events.
type RoundResetPayload struct {
	Session SessionSnapshot `json:"session"`
}

// StoryChangedPayload captures the payload for round.story_changed events.
// An empty label means the story was cleared.
type StoryChangedPayload struct {
	StoryLabel string `json:"story_label"`
}

// RoleLabel maps a domain role to its wire label.
func RoleLabel(role domain.Role) string {
	switch role {
	case domain.RoleVoter:
		return "voter"
	case domain.RoleSpectator:
		return "spectator"
	default:
		return ""
	}
}

// RoundStateLabel maps a domain round state to its wire label.
func RoundStateLabel(state domain.RoundState) string {
	switch state {
	case domain.RoundStateVoting:
		return "voting"
	case domain.RoundStateRevealed:
		return "revealed"
	default:
		return ""
	}
}

// NewParticipantSnapshot converts a participant for the wire. The vote label
// is included only when revealVote is true; before the reveal observers only
// learn that a vote exists.
func NewParticipantSnapshot(p domain.Participant, revealVote bool) ParticipantSnapshot {
	snapshot := ParticipantSnapshot{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Role:        RoleLabel(p.Role),
		HasVoted:    p.HasVoted(),
		Connected:   p.Connected,
		JoinedAt:    p.JoinedAt,
	}
	if revealVote {
		snapshot.Vote = string(p.Vote)
	}
	if p.Avatar != domain.AvatarNone {
		snapshot.Avatar = int(p.Avatar)
		snapshot.AvatarAsset = p.Avatar.AssetPath()
	}
	return snapshot
}

// NewSessionSnapshot converts a session aggregate for the wire. Participants
// are ordered by join time, then id for a stable tiebreak.
func NewSessionSnapshot(s domain.Session) SessionSnapshot {
	revealed := s.RoundState == domain.RoundStateRevealed

	participants := make([]ParticipantSnapshot, 0, len(s.Participants))
	for _, p := range s.Participants {
		participants = append(participants, NewParticipantSnapshot(p, revealed))
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].ID < participants[j].ID
	})

	cards := s.Deck.Cards()
	cardLabels := make([]string, 0, len(cards))
	for _, card := range cards {
		cardLabels = append(cardLabels, string(card))
	}

	available := domain.AvailableAvatars(s)
	availableInts := make([]int, 0, len(available))
	for _, a := range available {
		availableInts = append(availableInts, int(a))
	}

	snapshot := SessionSnapshot{
		ID:               s.ID,
		Name:             s.Name,
		Deck:             string(s.Deck),
		Cards:            cardLabels,
		RoundState:       RoundStateLabel(s.RoundState),
		StoryLabel:       s.StoryLabel,
		Participants:     participants,
		AvailableAvatars: availableInts,
		CreatedAt:        s.CreatedAt,
	}

	if revealed {
		stats := domain.ComputeStatistics(s)
		distribution := make([]VoteCountSnapshot, 0, len(stats.Distribution))
		for _, entry := range stats.Distribution {
			distribution = append(distribution, VoteCountSnapshot{Card: string(entry.Card), Count: entry.Count})
		}
		snapshot.Statistics = &StatisticsSnapshot{Average: stats.Average, Distribution: distribution}
	}

	return snapshot
}
