// Package actor hosts one goroutine per live session. The goroutine owns the
// session aggregate exclusively: every operation is dispatched as a message
// on its request channel and processed FIFO, so mutations are serialized
// without locks and operations against different sessions never contend.
package actor

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/pointing.space/internal/poker/domain"
	"github.com/louisbranch/pointing.space/internal/poker/event"
	"github.com/louisbranch/pointing.space/internal/poker/pubsub"
)

// Idle reclamation defaults: a session whose roster has been empty for the
// grace window is terminated on the next sweep.
const (
	DefaultSweepInterval = time.Minute
	DefaultIdleGrace     = 5 * time.Minute
)

var (
	// ErrNotFound indicates the session does not resolve to a live actor.
	// Terminated actors answer every operation with this.
	ErrNotFound = errors.New("session not found")
	// ErrAvatarTaken indicates a join requested an avatar already held by
	// another participant.
	ErrAvatarTaken = errors.New("avatar is already taken")
)

// Config tunes an actor's lifecycle behavior. Zero values fall back to
// defaults.
type Config struct {
	// SweepInterval is how often the idle check runs.
	SweepInterval time.Duration
	// IdleGrace is how long the roster may stay empty before termination.
	IdleGrace time.Duration
	// Now supplies event timestamps.
	Now func() time.Time
	// IDGenerator mints participant ids when a join supplies none.
	IDGenerator func() (string, error)
}

// Actor owns one session aggregate for its entire lifetime.
type Actor struct {
	sessionID string
	broker    *pubsub.Broker
	requests  chan request
	done      chan struct{}
	stopOnce  sync.Once
	// onTerminate removes the directory entry; it runs exactly once,
	// synchronously with termination, so stale handles are never returned.
	onTerminate func(sessionID string)
	now         func() time.Time
	newID       func() (string, error)
	sweep       time.Duration
	grace       time.Duration
}

type request struct {
	apply func(domain.Session) (domain.Session, []event.Event, error)
	reply chan response
}

type response struct {
	session domain.Session
	err     error
}

// Start launches an actor around the session and returns its handle. The
// onTerminate hook fires once when the actor stops, whether by idle
// reclamation, explicit stop, or panic.
func Start(session domain.Session, broker *pubsub.Broker, cfg Config, onTerminate func(sessionID string)) *Actor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.IdleGrace <= 0 {
		cfg.IdleGrace = DefaultIdleGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = domain.NewID
	}
	if onTerminate == nil {
		onTerminate = func(string) {}
	}

	a := &Actor{
		sessionID:   session.ID,
		broker:      broker,
		requests:    make(chan request),
		done:        make(chan struct{}),
		onTerminate: onTerminate,
		now:         cfg.Now,
		newID:       cfg.IDGenerator,
		sweep:       cfg.SweepInterval,
		grace:       cfg.IdleGrace,
	}
	go a.run(session)
	return a
}

// SessionID returns the id of the owned session.
func (a *Actor) SessionID() string {
	return a.sessionID
}

// Done is closed once the actor has terminated.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// Stop terminates the actor, discarding all session state.
func (a *Actor) Stop() {
	a.terminate()
}

func (a *Actor) terminate() {
	a.stopOnce.Do(func() {
		close(a.done)
		a.onTerminate(a.sessionID)
		a.broker.CloseTopic(a.sessionID)
	})
}

// run is the actor loop. A panic in a transition terminates only this
// session; the directory and every other session keep running.
func (a *Actor) run(session domain.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("poker: session actor panicked session=%s err=%v", a.sessionID, r)
		}
		a.terminate()
	}()

	ticker := time.NewTicker(a.sweep)
	defer ticker.Stop()

	emptySince := a.now()

	for {
		select {
		case <-a.done:
			return

		case req := <-a.requests:
			// A request that raced with termination is answered
			// ErrNotFound, never applied.
			select {
			case <-a.done:
				req.reply <- response{err: ErrNotFound}
				return
			default:
			}

			wasEmpty := len(session.Participants) == 0
			next, events, err := req.apply(session)
			if err != nil {
				req.reply <- response{err: err}
				continue
			}
			session = next
			if len(session.Participants) == 0 && !wasEmpty {
				emptySince = a.now()
			}
			req.reply <- response{session: session}
			// Broadcast strictly after the mutation is committed, in
			// emission order. Publish never blocks.
			for _, evt := range events {
				a.broker.Publish(evt)
			}

		case <-ticker.C:
			if len(session.Participants) == 0 && a.now().Sub(emptySince) >= a.grace {
				return
			}
		}
	}
}

// do dispatches one operation to the actor loop and waits for its response.
// Operations addressed to a terminated actor return ErrNotFound.
func (a *Actor) do(apply func(domain.Session) (domain.Session, []event.Event, error)) (domain.Session, error) {
	req := request{apply: apply, reply: make(chan response, 1)}

	select {
	case a.requests <- req:
	case <-a.done:
		return domain.Session{}, ErrNotFound
	}

	select {
	case resp := <-req.reply:
		return resp.session, resp.err
	case <-a.done:
		// The actor may have answered just before terminating.
		select {
		case resp := <-req.reply:
			return resp.session, resp.err
		default:
			return domain.Session{}, ErrNotFound
		}
	}
}

// newEvent builds a broadcast event; marshal failures are logged and the
// event is skipped rather than failing the already-committed mutation.
func (a *Actor) newEvent(eventType event.Type, payload any) []event.Event {
	evt, err := event.New(a.sessionID, eventType, a.now(), payload)
	if err != nil {
		log.Printf("poker: drop event session=%s type=%s err=%v", a.sessionID, eventType, err)
		return nil
	}
	return []event.Event{evt}
}

// Snapshot returns the current session aggregate.
func (a *Actor) Snapshot() (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		return s, nil, nil
	})
}

// AvailableAvatars returns the avatar pool minus the ids currently held,
// computed inside the actor's critical section.
func (a *Actor) AvailableAvatars() ([]domain.AvatarID, error) {
	session, err := a.Snapshot()
	if err != nil {
		return nil, err
	}
	return domain.AvailableAvatars(session), nil
}

// Join adds a participant, claiming its avatar inside the same critical
// section as the availability check so two concurrent joins can never
// double-claim. Joining with the id of a current participant is treated as a
// reconnect: the roster entry is kept and its presence flag is raised.
func (a *Actor) Join(input domain.CreateParticipantInput) (domain.Session, domain.Participant, error) {
	var joined domain.Participant
	session, err := a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		if existing, ok := s.Participants[input.ID]; ok {
			next := domain.SetConnected(s, existing.ID, true)
			joined = next.Participants[existing.ID]
			var events []event.Event
			if !existing.Connected {
				events = a.newEvent(event.TypeParticipantConnected, event.ParticipantConnectedPayload{ParticipantID: existing.ID})
			}
			return next, events, nil
		}

		if input.Avatar != domain.AvatarNone {
			if _, taken := s.UsedAvatars[input.Avatar]; taken {
				return domain.Session{}, nil, ErrAvatarTaken
			}
		}

		p, err := domain.CreateParticipant(input, a.now, a.newID)
		if err != nil {
			return domain.Session{}, nil, err
		}
		joined = p

		next := domain.AddParticipant(s, p)
		events := a.newEvent(event.TypeParticipantJoined, event.ParticipantJoinedPayload{
			Participant: event.NewParticipantSnapshot(p, next.RoundState == domain.RoundStateRevealed),
		})
		return next, events, nil
	})
	return session, joined, err
}

// Leave removes the participant and releases its avatar.
func (a *Actor) Leave(participantID string) (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		if _, ok := s.Participants[participantID]; !ok {
			return s, nil, nil
		}
		next := domain.RemoveParticipant(s, participantID)
		return next, a.newEvent(event.TypeParticipantLeft, event.ParticipantLeftPayload{ParticipantID: participantID}), nil
	})
}

// CastVote records a vote for the participant.
func (a *Actor) CastVote(participantID string, card domain.Card) (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		p, ok := s.Participants[participantID]
		next, err := domain.CastVote(s, participantID, card)
		if err != nil {
			return domain.Session{}, nil, err
		}
		if !ok || p.Role != domain.RoleVoter {
			return next, nil, nil
		}
		return next, a.newEvent(event.TypeVoteCast, event.VoteCastPayload{ParticipantID: participantID}), nil
	})
}

// Reveal freezes the round. A no-op when already revealed.
func (a *Actor) Reveal() (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		if s.RoundState == domain.RoundStateRevealed {
			return s, nil, nil
		}
		next := domain.Reveal(s)
		return next, a.newEvent(event.TypeVotesRevealed, event.VotesRevealedPayload{Session: event.NewSessionSnapshot(next)}), nil
	})
}

// ResetRound clears votes and the story label and restarts voting.
func (a *Actor) ResetRound() (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		next := domain.ResetRound(s)
		return next, a.newEvent(event.TypeRoundReset, event.RoundResetPayload{Session: event.NewSessionSnapshot(next)}), nil
	})
}

// SetStory sets or clears the story label.
func (a *Actor) SetStory(label string) (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		next := domain.SetStory(s, label)
		return next, a.newEvent(event.TypeStoryChanged, event.StoryChangedPayload{StoryLabel: next.StoryLabel}), nil
	})
}

// SetConnected flips the participant's presence flag. An event is emitted
// only when the flag actually changes.
func (a *Actor) SetConnected(participantID string, connected bool) (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		p, ok := s.Participants[participantID]
		if !ok || p.Connected == connected {
			return s, nil, nil
		}
		next := domain.SetConnected(s, participantID, connected)
		if connected {
			return next, a.newEvent(event.TypeParticipantConnected, event.ParticipantConnectedPayload{ParticipantID: participantID}), nil
		}
		return next, a.newEvent(event.TypeParticipantDisconnected, event.ParticipantDisconnectedPayload{ParticipantID: participantID}), nil
	})
}

// ToggleRole flips the participant between voter and spectator.
func (a *Actor) ToggleRole(participantID string) (domain.Session, error) {
	return a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
		if _, ok := s.Participants[participantID]; !ok {
			return s, nil, nil
		}
		next := domain.ToggleRole(s, participantID)
		return next, a.newEvent(event.TypeRoleToggled, event.RoleToggledPayload{
			ParticipantID: participantID,
			Role:          event.RoleLabel(next.Participants[participantID].Role),
		}), nil
	})
}
