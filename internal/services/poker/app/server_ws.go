package server

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/louisbranch/pointing.space/internal/platform/errors"
	"github.com/louisbranch/pointing.space/internal/poker/actor"
	"github.com/louisbranch/pointing.space/internal/poker/directory"
	"github.com/louisbranch/pointing.space/internal/poker/domain"
	"github.com/louisbranch/pointing.space/internal/poker/event"
	"github.com/louisbranch/pointing.space/internal/poker/pubsub"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type joinPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id,omitempty"`
	DisplayName   string `json:"display_name"`
	Role          string `json:"role,omitempty"`
	Avatar        int    `json:"avatar,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

type joinedPayload struct {
	Session       event.SessionSnapshot `json:"session"`
	ParticipantID string                `json:"participant_id"`
	ServerTime    string                `json:"server_time"`
}

type votePayload struct {
	Card string `json:"card"`
}

type storyPayload struct {
	Label string `json:"label"`
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status string `json:"status"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsSession tracks what one connection has joined. All fields are owned by
// the connection's read loop; the fan-out goroutine only touches the peer.
type wsSession struct {
	peer          *wsPeer
	locale        string
	actor         *actor.Actor
	participantID string
	subscription  *pubsub.Subscription
}

func (s *wsSession) joined() bool {
	return s.actor != nil
}

// detach stops event fan-out and forgets the joined session without touching
// actor state.
func (s *wsSession) detach() {
	if s.subscription != nil {
		s.subscription.Close()
		s.subscription = nil
	}
	s.actor = nil
	s.participantID = ""
}

func handleWSConn(conn *websocket.Conn, dir *directory.Directory, broker *pubsub.Broker) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	session := &wsSession{peer: newWSPeer(json.NewEncoder(conn))}
	defer func() {
		// A dropped socket marks the participant disconnected; the roster
		// entry survives for a later reconnect.
		if session.joined() {
			if _, err := session.actor.SetConnected(session.participantID, false); err != nil && !stderrors.Is(err, actor.ErrNotFound) {
				log.Printf("poker: mark disconnected participant=%s err=%v", session.participantID, err)
			}
			session.detach()
		}
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if stderrors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "poker.join":
			handleJoinFrame(session, dir, broker, frame)
		case "poker.leave":
			handleLeaveFrame(session, frame)
		case "poker.vote":
			handleVoteFrame(session, frame)
		case "poker.reveal":
			handleActorFrame(session, frame, func(a *actor.Actor) (domain.Session, error) {
				return a.Reveal()
			})
		case "poker.reset":
			handleActorFrame(session, frame, func(a *actor.Actor) (domain.Session, error) {
				return a.ResetRound()
			})
		case "poker.story":
			handleStoryFrame(session, frame)
		case "poker.role":
			handleActorFrame(session, frame, func(a *actor.Actor) (domain.Session, error) {
				return a.ToggleRole(session.participantID)
			})
		case "poker.snapshot":
			handleSnapshotFrame(session, frame)
		default:
			_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleJoinFrame(session *wsSession, dir *directory.Directory, broker *pubsub.Broker, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "session_id is required")
		return
	}
	if runeCount(payload.DisplayName) > maxDisplayNameRunes {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "display_name must be at most 64 characters")
		return
	}

	role, ok := parseRole(payload.Role)
	if !ok {
		_ = writeWSDomainError(session, frame.RequestID, domain.ErrInvalidRole)
		return
	}
	if strings.TrimSpace(payload.Locale) != "" {
		session.locale = strings.TrimSpace(payload.Locale)
	}

	a, err := dir.Lookup(sessionID)
	if err != nil {
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}

	// Subscribe before joining so no event between the join commit and the
	// joined frame is lost. The snapshot in the joined frame already reflects
	// the join itself.
	subscription := broker.Subscribe(sessionID)

	aggregate, participant, err := a.Join(domain.CreateParticipantInput{
		ID:          strings.TrimSpace(payload.ParticipantID),
		DisplayName: payload.DisplayName,
		Role:        role,
		Avatar:      domain.AvatarID(payload.Avatar),
	})
	if err != nil {
		subscription.Close()
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}

	// Joining a second session moves the connection: the previous
	// participant is marked disconnected, not removed. A repeat join for
	// the participant this socket already represents is a reconnect, so
	// its presence flag stays up.
	if session.joined() {
		moved := session.actor != a || session.participantID != participant.ID
		if moved {
			if _, err := session.actor.SetConnected(session.participantID, false); err != nil && !stderrors.Is(err, actor.ErrNotFound) {
				log.Printf("poker: mark disconnected participant=%s err=%v", session.participantID, err)
			}
		}
		session.detach()
	}

	session.actor = a
	session.participantID = participant.ID
	session.subscription = subscription
	go forwardEvents(session.peer, subscription)

	_ = session.peer.writeFrame(wsFrame{
		Type:      "poker.joined",
		RequestID: frame.RequestID,
		Payload: mustJSON(joinedPayload{
			Session:       event.NewSessionSnapshot(aggregate),
			ParticipantID: participant.ID,
			ServerTime:    time.Now().UTC().Format(time.RFC3339),
		}),
	})
}

func handleLeaveFrame(session *wsSession, frame wsFrame) {
	if !session.joined() {
		_ = writeWSError(session, frame.RequestID, "FAILED_PRECONDITION", "must join a session first")
		return
	}
	if _, err := session.actor.Leave(session.participantID); err != nil && !stderrors.Is(err, actor.ErrNotFound) {
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}
	session.detach()
	writeAck(session, frame.RequestID)
}

func handleVoteFrame(session *wsSession, frame wsFrame) {
	if !session.joined() {
		_ = writeWSError(session, frame.RequestID, "FAILED_PRECONDITION", "must join a session first")
		return
	}
	var payload votePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "invalid vote payload")
		return
	}
	if _, err := session.actor.CastVote(session.participantID, domain.Card(payload.Card)); err != nil {
		mapped := mapDomainError(err)
		if mapped.Code == errors.CodeVoteInvalidCard {
			mapped.Metadata = map[string]string{"Card": payload.Card}
		}
		_ = writeWSMappedError(session, frame.RequestID, mapped)
		return
	}
	writeAck(session, frame.RequestID)
}

func handleStoryFrame(session *wsSession, frame wsFrame) {
	if !session.joined() {
		_ = writeWSError(session, frame.RequestID, "FAILED_PRECONDITION", "must join a session first")
		return
	}
	var payload storyPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "invalid story payload")
		return
	}
	if runeCount(payload.Label) > maxStoryLabelRunes {
		_ = writeWSError(session, frame.RequestID, "INVALID_ARGUMENT", "label must be at most 200 characters")
		return
	}
	if _, err := session.actor.SetStory(payload.Label); err != nil {
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}
	writeAck(session, frame.RequestID)
}

func handleActorFrame(session *wsSession, frame wsFrame, op func(*actor.Actor) (domain.Session, error)) {
	if !session.joined() {
		_ = writeWSError(session, frame.RequestID, "FAILED_PRECONDITION", "must join a session first")
		return
	}
	if _, err := op(session.actor); err != nil {
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}
	writeAck(session, frame.RequestID)
}

func handleSnapshotFrame(session *wsSession, frame wsFrame) {
	if !session.joined() {
		_ = writeWSError(session, frame.RequestID, "FAILED_PRECONDITION", "must join a session first")
		return
	}
	aggregate, err := session.actor.Snapshot()
	if err != nil {
		_ = writeWSDomainError(session, frame.RequestID, err)
		return
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      "poker.snapshot",
		RequestID: frame.RequestID,
		Payload:   mustJSON(sessionEnvelope{Session: event.NewSessionSnapshot(aggregate)}),
	})
}

// forwardEvents copies broadcast events to the peer until the subscription
// closes. Writes from here interleave safely with reply frames through the
// peer mutex.
func forwardEvents(peer *wsPeer, subscription *pubsub.Subscription) {
	for evt := range subscription.Events() {
		_ = peer.writeFrame(wsFrame{
			Type: "poker.event",
			Payload: mustJSON(eventEnvelope{
				Type:      string(evt.Type),
				Timestamp: evt.Timestamp.UTC().Format(time.RFC3339),
				Payload:   json.RawMessage(evt.PayloadJSON),
			}),
		})
	}
}

func parseRole(label string) (domain.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "voter":
		return domain.RoleVoter, true
	case "spectator":
		return domain.RoleSpectator, true
	default:
		return domain.RoleUnspecified, false
	}
}

func writeAck(session *wsSession, requestID string) {
	_ = session.peer.writeFrame(wsFrame{
		Type:      "poker.ack",
		RequestID: requestID,
		Payload:   mustJSON(ackEnvelope{Result: ackResult{Status: "ok"}}),
	})
}

// writeWSDomainError maps a domain failure and localizes its message for the
// connection's locale.
func writeWSDomainError(session *wsSession, requestID string, err error) error {
	return writeWSMappedError(session, requestID, mapDomainError(err))
}

func writeWSMappedError(session *wsSession, requestID string, mapped *errors.Error) error {
	return session.peer.writeFrame(wsFrame{
		Type:      "poker.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      string(mapped.Code),
				Message:   localizedMessage(session.locale, mapped),
				Retryable: mapped.Code.Retryable(),
			},
		}),
	})
}

func writeWSError(session *wsSession, requestID string, code string, message string) error {
	return session.peer.writeFrame(wsFrame{
		Type:      "poker.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: false,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
