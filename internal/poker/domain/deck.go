package domain

import (
	"errors"
	"strings"
)

// Deck identifies one of the supported estimation decks.
type Deck string

const (
	// DeckFibonacci is the numeric point scale deck.
	DeckFibonacci Deck = "fibonacci"
	// DeckShirtSize is the relative size deck. None of its cards are numeric.
	DeckShirtSize Deck = "shirts"
)

// Card is an opaque card label belonging to a deck.
type Card string

// Special cards shared by every deck.
const (
	// CardUnsure signals the voter cannot estimate the item.
	CardUnsure Card = "unsure"
	// CardBreak signals the voter needs a break.
	CardBreak Card = "break"
)

// ErrInvalidDeck indicates an unknown deck name at the transport boundary.
// Inside the engine an invalid deck is a programming error, not a runtime
// case: a session always holds a validated deck.
var ErrInvalidDeck = errors.New("unknown deck")

var fibonacciCards = []Card{"0", "1", "2", "3", "5", "8", "13", "21", "34", CardUnsure, CardBreak}

var fibonacciValues = map[Card]float64{
	"0": 0, "1": 1, "2": 2, "3": 3, "5": 5, "8": 8, "13": 13, "21": 21, "34": 34,
}

var shirtSizeCards = []Card{"XS", "S", "M", "L", "XL", "XXL", CardUnsure, CardBreak}

// ParseDeck maps a deck name from the wire to a Deck.
func ParseDeck(name string) (Deck, error) {
	switch Deck(strings.TrimSpace(strings.ToLower(name))) {
	case DeckFibonacci:
		return DeckFibonacci, nil
	case DeckShirtSize:
		return DeckShirtSize, nil
	default:
		return "", ErrInvalidDeck
	}
}

// IsValid reports whether the deck is one of the supported variants.
func (d Deck) IsValid() bool {
	return d == DeckFibonacci || d == DeckShirtSize
}

// Cards returns the deck's card list in display order. Numeric cards come
// first in ascending value, special cards trail.
func (d Deck) Cards() []Card {
	var cards []Card
	switch d {
	case DeckFibonacci:
		cards = fibonacciCards
	case DeckShirtSize:
		cards = shirtSizeCards
	}
	out := make([]Card, len(cards))
	copy(out, cards)
	return out
}

// Contains reports whether the card is legal for the deck.
func (d Deck) Contains(card Card) bool {
	var cards []Card
	switch d {
	case DeckFibonacci:
		cards = fibonacciCards
	case DeckShirtSize:
		cards = shirtSizeCards
	}
	for _, c := range cards {
		if c == card {
			return true
		}
	}
	return false
}

// NumericValue returns the card's numeric value and whether the card is
// numeric in this deck. Special cards and every shirt-size card carry no
// numeric meaning.
func (d Deck) NumericValue(card Card) (float64, bool) {
	if d != DeckFibonacci {
		return 0, false
	}
	value, ok := fibonacciValues[card]
	return value, ok
}
