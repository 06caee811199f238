package domain

import "math"

// VoteCount is one entry of a vote distribution.
type VoteCount struct {
	Card  Card
	Count int
}

// Statistics summarizes the votes of the current round. Average is nil when
// no numeric-card vote exists. Distribution counts every cast card, numeric
// cards first in ascending value with special cards trailing.
type Statistics struct {
	Average      *float64
	Distribution []VoteCount
}

// ComputeStatistics derives statistics from the roster on demand. Only
// voter-role participants with a recorded vote count.
func ComputeStatistics(s Session) Statistics {
	counts := map[Card]int{}
	sum := 0.0
	numericVotes := 0
	for _, p := range s.Participants {
		if p.Role != RoleVoter || !p.HasVoted() {
			continue
		}
		counts[p.Vote]++
		if value, ok := s.Deck.NumericValue(p.Vote); ok {
			sum += value
			numericVotes++
		}
	}

	stats := Statistics{Distribution: []VoteCount{}}
	for _, card := range s.Deck.Cards() {
		if count := counts[card]; count > 0 {
			stats.Distribution = append(stats.Distribution, VoteCount{Card: card, Count: count})
		}
	}

	if numericVotes > 0 {
		average := math.Round(sum/float64(numericVotes)*10) / 10
		stats.Average = &average
	}
	return stats
}
