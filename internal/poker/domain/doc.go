// Package domain contains the pure planning-poker session model: the card
// and avatar catalogs, the participant value type, and the session
// aggregate with its transition functions.
//
// All transitions are pure. They take the current value and return a new
// value (or a typed failure) without mutating their input, so the owning
// actor can apply them atomically and callers can hold snapshots safely.
package domain
