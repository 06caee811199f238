// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeNotFound           Code = "NOT_FOUND"
	CodeSessionNameEmpty   Code = "SESSION_NAME_EMPTY"
	CodeSessionInvalidDeck Code = "SESSION_INVALID_DECK"

	// Participant errors
	CodeParticipantEmptyDisplayName Code = "PARTICIPANT_EMPTY_DISPLAY_NAME"
	CodeParticipantInvalidRole      Code = "PARTICIPANT_INVALID_ROLE"
	CodeParticipantInvalidAvatar    Code = "PARTICIPANT_INVALID_AVATAR"
	CodeAvatarTaken                 Code = "AVATAR_TAKEN"

	// Round errors
	CodeVoteInvalidCard      Code = "VOTE_INVALID_CARD"
	CodeRoundAlreadyRevealed Code = "ROUND_ALREADY_REVEALED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeSessionNameEmpty,
		CodeSessionInvalidDeck,
		CodeParticipantEmptyDisplayName,
		CodeParticipantInvalidRole,
		CodeParticipantInvalidAvatar,
		CodeVoteInvalidCard:
		return http.StatusBadRequest

	case CodeAvatarTaken,
		CodeRoundAlreadyRevealed:
		return http.StatusConflict

	case CodeNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a client may retry the same request unchanged.
// Validation and state-conflict failures are deterministic and not retryable.
func (c Code) Retryable() bool {
	switch c {
	case CodeUnknown:
		return true
	default:
		return false
	}
}
