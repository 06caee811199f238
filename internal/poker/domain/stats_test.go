package domain

import "testing"

func castAll(t *testing.T, session Session, votes map[string]Card) Session {
	t.Helper()
	for id, card := range votes {
		var err error
		if session, err = CastVote(session, id, card); err != nil {
			t.Fatalf("cast vote %s=%s: %v", id, card, err)
		}
	}
	return session
}

func TestComputeStatisticsFibonacci(t *testing.T) {
	session := newTestSession(t, DeckFibonacci)
	for _, id := range []string{"p1", "p2", "p3"} {
		session = AddParticipant(session, voter(id, AvatarNone))
	}
	session = castAll(t, session, map[string]Card{"p1": "5", "p2": "8", "p3": "5"})
	session = Reveal(session)

	stats := ComputeStatistics(session)
	if stats.Average == nil || *stats.Average != 6.0 {
		t.Fatalf("expected average 6.0, got %v", stats.Average)
	}
	want := []VoteCount{{Card: "5", Count: 2}, {Card: "8", Count: 1}}
	if len(stats.Distribution) != len(want) {
		t.Fatalf("expected %d distribution entries, got %d", len(want), len(stats.Distribution))
	}
	for i, entry := range want {
		if stats.Distribution[i] != entry {
			t.Fatalf("expected %v at %d, got %v", entry, i, stats.Distribution[i])
		}
	}
}

func TestComputeStatisticsShirtSizesHaveNoAverage(t *testing.T) {
	session := newTestSession(t, DeckShirtSize)
	session = AddParticipant(session, voter("p1", AvatarNone))
	session = AddParticipant(session, voter("p2", AvatarNone))
	session = castAll(t, session, map[string]Card{"p1": "M", "p2": "L"})

	stats := ComputeStatistics(session)
	if stats.Average != nil {
		t.Fatalf("expected nil average, got %v", *stats.Average)
	}
	want := []VoteCount{{Card: "M", Count: 1}, {Card: "L", Count: 1}}
	if len(stats.Distribution) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(stats.Distribution))
	}
	for i, entry := range want {
		if stats.Distribution[i] != entry {
			t.Fatalf("expected %v at %d, got %v", entry, i, stats.Distribution[i])
		}
	}
}

func TestComputeStatisticsZeroVotes(t *testing.T) {
	session := AddParticipant(newTestSession(t, DeckFibonacci), voter("p1", AvatarNone))
	stats := ComputeStatistics(session)
	if stats.Average != nil {
		t.Fatal("expected nil average with zero votes")
	}
	if len(stats.Distribution) != 0 {
		t.Fatalf("expected empty distribution, got %v", stats.Distribution)
	}
}

func TestComputeStatisticsSpecialCardsCountButDoNotAverage(t *testing.T) {
	session := newTestSession(t, DeckFibonacci)
	for _, id := range []string{"p1", "p2", "p3"} {
		session = AddParticipant(session, voter(id, AvatarNone))
	}
	session = castAll(t, session, map[string]Card{"p1": "3", "p2": CardUnsure, "p3": CardBreak})

	stats := ComputeStatistics(session)
	if stats.Average == nil || *stats.Average != 3.0 {
		t.Fatalf("expected average 3.0 over the single numeric vote, got %v", stats.Average)
	}
	// Specials trail numeric cards in deck order.
	want := []VoteCount{{Card: "3", Count: 1}, {Card: CardUnsure, Count: 1}, {Card: CardBreak, Count: 1}}
	for i, entry := range want {
		if stats.Distribution[i] != entry {
			t.Fatalf("expected %v at %d, got %v", entry, i, stats.Distribution[i])
		}
	}
}

func TestComputeStatisticsOnlySpecialVotesHasNoAverage(t *testing.T) {
	session := AddParticipant(newTestSession(t, DeckFibonacci), voter("p1", AvatarNone))
	session = castAll(t, session, map[string]Card{"p1": CardUnsure})

	stats := ComputeStatistics(session)
	if stats.Average != nil {
		t.Fatal("expected nil average when only special cards were cast")
	}
	if len(stats.Distribution) != 1 || stats.Distribution[0].Card != CardUnsure {
		t.Fatalf("expected unsure counted, got %v", stats.Distribution)
	}
}

func TestComputeStatisticsIgnoresSpectators(t *testing.T) {
	session := AddParticipant(newTestSession(t, DeckFibonacci), voter("p1", AvatarNone))
	spectator := Participant{ID: "s1", DisplayName: "s1", Role: RoleSpectator, Connected: true}
	// A vote snuck onto a spectator must not count.
	spectator.Vote = "13"
	session = AddParticipant(session, spectator)
	session = castAll(t, session, map[string]Card{"p1": "2"})

	stats := ComputeStatistics(session)
	if stats.Average == nil || *stats.Average != 2.0 {
		t.Fatalf("expected average 2.0, got %v", stats.Average)
	}
	if len(stats.Distribution) != 1 {
		t.Fatalf("expected only the voter counted, got %v", stats.Distribution)
	}
}

func TestComputeStatisticsRoundsToOneDecimal(t *testing.T) {
	session := newTestSession(t, DeckFibonacci)
	for _, id := range []string{"p1", "p2", "p3"} {
		session = AddParticipant(session, voter(id, AvatarNone))
	}
	session = castAll(t, session, map[string]Card{"p1": "1", "p2": "1", "p3": "2"})

	stats := ComputeStatistics(session)
	if stats.Average == nil || *stats.Average != 1.3 {
		t.Fatalf("expected average 1.3, got %v", stats.Average)
	}
}
