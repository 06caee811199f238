package actor

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/pointing.space/internal/poker/domain"
	"github.com/louisbranch/pointing.space/internal/poker/event"
	"github.com/louisbranch/pointing.space/internal/poker/pubsub"
)

func startTestActor(t *testing.T, cfg Config) (*Actor, *pubsub.Broker) {
	t.Helper()
	session, err := domain.CreateSession(domain.CreateSessionInput{Name: "Sprint 42", Deck: domain.DeckFibonacci},
		nil, func() (string, error) { return "sess123456", nil })
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	broker := pubsub.NewBroker()
	a := Start(session, broker, cfg, nil)
	t.Cleanup(a.Stop)
	return a, broker
}

func joinVoter(t *testing.T, a *Actor, id string, avatar domain.AvatarID) domain.Participant {
	t.Helper()
	_, p, err := a.Join(domain.CreateParticipantInput{ID: id, DisplayName: id, Role: domain.RoleVoter, Avatar: avatar})
	if err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	return p
}

func nextEvent(t *testing.T, sub *pubsub.Subscription) event.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed while waiting for event")
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return event.Event{}
}

func TestJoinVoteRevealFlow(t *testing.T) {
	a, _ := startTestActor(t, Config{})

	joinVoter(t, a, "p1", domain.AvatarID(1))
	joinVoter(t, a, "p2", domain.AvatarNone)
	joinVoter(t, a, "p3", domain.AvatarNone)

	for id, card := range map[string]domain.Card{"p1": "5", "p2": "8", "p3": "5"} {
		if _, err := a.CastVote(id, card); err != nil {
			t.Fatalf("cast vote %s: %v", id, err)
		}
	}

	session, err := a.Reveal()
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if session.RoundState != domain.RoundStateRevealed {
		t.Fatalf("expected revealed, got %v", session.RoundState)
	}

	stats := domain.ComputeStatistics(session)
	if stats.Average == nil || *stats.Average != 6.0 {
		t.Fatalf("expected average 6.0, got %v", stats.Average)
	}
}

func TestJoinGeneratesParticipantID(t *testing.T) {
	a, _ := startTestActor(t, Config{IDGenerator: func() (string, error) { return "minted", nil }})

	_, p, err := a.Join(domain.CreateParticipantInput{DisplayName: "Alice", Role: domain.RoleVoter})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.ID != "minted" {
		t.Fatalf("expected minted id, got %q", p.ID)
	}
}

func TestJoinRejectsTakenAvatar(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarID(3))

	_, _, err := a.Join(domain.CreateParticipantInput{ID: "p2", DisplayName: "p2", Role: domain.RoleVoter, Avatar: domain.AvatarID(3)})
	if !errors.Is(err, ErrAvatarTaken) {
		t.Fatalf("expected ErrAvatarTaken, got %v", err)
	}

	// A different avatar still works.
	joinVoter(t, a, "p2", domain.AvatarID(4))
}

func TestConcurrentJoinsNeverDoubleClaimAvatar(t *testing.T) {
	a, _ := startTestActor(t, Config{})

	const contenders = 8
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, _, errs[i] = a.Join(domain.CreateParticipantInput{ID: id, DisplayName: id, Role: domain.RoleVoter, Avatar: domain.AvatarID(5)})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAvatarTaken):
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one join to claim avatar 5, got %d", winners)
	}

	session, err := a.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	holders := 0
	for _, p := range session.Participants {
		if p.Avatar == domain.AvatarID(5) {
			holders++
		}
	}
	if holders != 1 {
		t.Fatalf("expected one avatar holder, got %d", holders)
	}
}

func TestJoinExistingParticipantIsReconnect(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarID(2))

	if _, err := a.SetConnected("p1", false); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	session, p, err := a.Join(domain.CreateParticipantInput{ID: "p1", DisplayName: "renamed", Role: domain.RoleVoter})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !p.Connected {
		t.Fatal("expected reconnect to raise presence flag")
	}
	if len(session.Participants) != 1 {
		t.Fatalf("expected single roster entry, got %d", len(session.Participants))
	}
	if p.Avatar != domain.AvatarID(2) {
		t.Fatal("expected original roster entry kept on reconnect")
	}
}

func TestAvailableAvatars(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarID(1))
	joinVoter(t, a, "p2", domain.AvatarID(7))

	available, err := a.AvailableAvatars()
	if err != nil {
		t.Fatalf("available avatars: %v", err)
	}
	if len(available) != domain.AvatarPoolSize-2 {
		t.Fatalf("expected %d available, got %d", domain.AvatarPoolSize-2, len(available))
	}
}

func TestBroadcastsAfterCommittedMutations(t *testing.T) {
	a, broker := startTestActor(t, Config{})
	sub := broker.Subscribe("sess123456")
	defer sub.Close()

	joinVoter(t, a, "p1", domain.AvatarNone)
	if evt := nextEvent(t, sub); evt.Type != event.TypeParticipantJoined {
		t.Fatalf("expected participant.joined, got %s", evt.Type)
	}

	if _, err := a.CastVote("p1", "5"); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if evt := nextEvent(t, sub); evt.Type != event.TypeVoteCast {
		t.Fatalf("expected vote_cast, got %s", evt.Type)
	}

	if _, err := a.Reveal(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if evt := nextEvent(t, sub); evt.Type != event.TypeVotesRevealed {
		t.Fatalf("expected votes_revealed, got %s", evt.Type)
	}

	// A second reveal is a no-op and must not broadcast.
	if _, err := a.Reveal(); err != nil {
		t.Fatalf("second reveal: %v", err)
	}

	if _, err := a.ResetRound(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if evt := nextEvent(t, sub); evt.Type != event.TypeRoundReset {
		t.Fatalf("expected round.reset, got %s", evt.Type)
	}
}

func TestFailedMutationsDoNotBroadcast(t *testing.T) {
	a, broker := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarNone)

	sub := broker.Subscribe("sess123456")
	defer sub.Close()

	if _, err := a.CastVote("p1", "M"); !errors.Is(err, domain.ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected broadcast after failed vote: %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenceEvents(t *testing.T) {
	a, broker := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarNone)

	sub := broker.Subscribe("sess123456")
	defer sub.Close()

	if _, err := a.SetConnected("p1", false); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if evt := nextEvent(t, sub); evt.Type != event.TypeParticipantDisconnected {
		t.Fatalf("expected participant.disconnected, got %s", evt.Type)
	}

	// Repeating the same flag is not a flip and must not broadcast.
	if _, err := a.SetConnected("p1", false); err != nil {
		t.Fatalf("repeat disconnect: %v", err)
	}
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected broadcast for unchanged flag: %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVotesAreFrozenAfterReveal(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarNone)

	if _, err := a.CastVote("p1", "5"); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if _, err := a.Reveal(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, err := a.CastVote("p1", "8"); !errors.Is(err, domain.ErrAlreadyRevealed) {
		t.Fatalf("expected ErrAlreadyRevealed, got %v", err)
	}

	session, err := a.ResetRound()
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if session.RoundState != domain.RoundStateVoting || domain.AnyVotes(session) {
		t.Fatal("expected fresh voting round after reset")
	}
}

func TestStoppedActorReturnsNotFound(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	a.Stop()

	if _, err := a.Snapshot(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := a.Join(domain.CreateParticipantInput{ID: "p1", DisplayName: "p1", Role: domain.RoleVoter}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStopWhileRequestPendingAnswersNotFound(t *testing.T) {
	a, _ := startTestActor(t, Config{SweepInterval: time.Hour, IdleGrace: time.Hour})

	block := make(chan struct{})
	busy := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = a.do(func(s domain.Session) (domain.Session, []event.Event, error) {
			close(busy)
			<-block
			return s, nil, nil
		})
	}()
	<-busy

	// Queue a second operation while the loop is busy applying the first,
	// then stop the actor before it can be received. It must be answered
	// ErrNotFound, never applied.
	queuedErr := make(chan error, 1)
	go func() {
		_, err := a.Snapshot()
		queuedErr <- err
	}()

	a.Stop()
	close(block)

	select {
	case err := <-queuedErr:
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound for operation queued across stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued operation to resolve")
	}
	<-firstDone
}

func TestIdleActorTerminates(t *testing.T) {
	terminated := make(chan string, 1)
	session, err := domain.CreateSession(domain.CreateSessionInput{Name: "Sprint", Deck: domain.DeckFibonacci},
		nil, func() (string, error) { return "idle-sess", nil })
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	broker := pubsub.NewBroker()
	sub := broker.Subscribe("idle-sess")

	a := Start(session, broker, Config{SweepInterval: 10 * time.Millisecond, IdleGrace: 30 * time.Millisecond},
		func(id string) { terminated <- id })

	select {
	case id := <-terminated:
		if id != "idle-sess" {
			t.Fatalf("expected idle-sess, got %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected idle actor to terminate")
	}

	// Subscribers stop receiving events: the topic closes.
	select {
	case _, open := <-sub.Events():
		if open {
			t.Fatal("expected topic closed after termination")
		}
	case <-time.After(time.Second):
		t.Fatal("expected subscription channel to close")
	}

	if _, err := a.Snapshot(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after idle reclamation, got %v", err)
	}
}

func TestOccupiedActorSurvivesSweeps(t *testing.T) {
	a, _ := startTestActor(t, Config{SweepInterval: 10 * time.Millisecond, IdleGrace: 20 * time.Millisecond})
	joinVoter(t, a, "p1", domain.AvatarNone)

	time.Sleep(100 * time.Millisecond)

	if _, err := a.Snapshot(); err != nil {
		t.Fatalf("expected occupied actor to stay alive, got %v", err)
	}
}

func TestEmptyGraceRestartsWhenRoomEmpties(t *testing.T) {
	terminated := make(chan string, 1)
	session, err := domain.CreateSession(domain.CreateSessionInput{Name: "Sprint", Deck: domain.DeckFibonacci},
		nil, func() (string, error) { return "ebbing", nil })
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	a := Start(session, pubsub.NewBroker(), Config{SweepInterval: 10 * time.Millisecond, IdleGrace: 40 * time.Millisecond},
		func(id string) { terminated <- id })

	if _, _, err := a.Join(domain.CreateParticipantInput{ID: "p1", DisplayName: "p1", Role: domain.RoleVoter}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := a.Leave("p1"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("expected actor to terminate after the room emptied")
	}
}

func TestPanicTerminatesOnlyThisActor(t *testing.T) {
	terminated := make(chan string, 1)
	session, err := domain.CreateSession(domain.CreateSessionInput{Name: "Sprint", Deck: domain.DeckFibonacci},
		nil, func() (string, error) { return "doomed", nil })
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	broker := pubsub.NewBroker()
	a := Start(session, broker, Config{}, func(id string) { terminated <- id })
	healthy, _ := startTestActor(t, Config{})

	_, _ = a.do(func(domain.Session) (domain.Session, []event.Event, error) {
		panic("corrupted state")
	})

	select {
	case <-terminated:
	case <-time.After(2 * time.Second):
		t.Fatal("expected panicked actor to terminate")
	}
	if _, err := a.Snapshot(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from panicked actor, got %v", err)
	}

	// Other sessions are unaffected.
	if _, err := healthy.Snapshot(); err != nil {
		t.Fatalf("expected healthy actor to keep serving, got %v", err)
	}
}

func TestLatestVoteWins(t *testing.T) {
	a, _ := startTestActor(t, Config{})
	joinVoter(t, a, "p1", domain.AvatarNone)

	if _, err := a.CastVote("p1", "3"); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	session, err := a.CastVote("p1", "13")
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if session.Participants["p1"].Vote != "13" {
		t.Fatalf("expected latest vote 13, got %q", session.Participants["p1"].Vote)
	}

	session, err = a.Reveal()
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	stats := domain.ComputeStatistics(session)
	if len(stats.Distribution) != 1 || stats.Distribution[0].Card != "13" || stats.Distribution[0].Count != 1 {
		t.Fatalf("expected single 13 vote, got %v", stats.Distribution)
	}
}
