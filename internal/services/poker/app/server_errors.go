package server

import (
	stderrors "errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/louisbranch/pointing.space/internal/platform/errors"
	errorsi18n "github.com/louisbranch/pointing.space/internal/platform/errors/i18n"
	"github.com/louisbranch/pointing.space/internal/poker/actor"
	"github.com/louisbranch/pointing.space/internal/poker/domain"
)

// mapDomainError translates domain and actor sentinels into structured
// errors. Unknown failures map to CodeUnknown so internals never leak to
// clients.
func mapDomainError(err error) *errors.Error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, actor.ErrNotFound):
		return errors.Wrap(errors.CodeNotFound, "session not found", err)
	case stderrors.Is(err, actor.ErrAvatarTaken):
		return errors.Wrap(errors.CodeAvatarTaken, "avatar already claimed", err)
	case stderrors.Is(err, domain.ErrEmptySessionName):
		return errors.Wrap(errors.CodeSessionNameEmpty, "session name is required", err)
	case stderrors.Is(err, domain.ErrInvalidDeck):
		return errors.Wrap(errors.CodeSessionInvalidDeck, "unknown deck", err)
	case stderrors.Is(err, domain.ErrEmptyDisplayName):
		return errors.Wrap(errors.CodeParticipantEmptyDisplayName, "display name is required", err)
	case stderrors.Is(err, domain.ErrInvalidRole):
		return errors.Wrap(errors.CodeParticipantInvalidRole, "invalid participant role", err)
	case stderrors.Is(err, domain.ErrInvalidAvatar):
		return errors.Wrap(errors.CodeParticipantInvalidAvatar, "invalid avatar", err)
	case stderrors.Is(err, domain.ErrInvalidCard):
		return errors.Wrap(errors.CodeVoteInvalidCard, "card is not in the deck", err)
	case stderrors.Is(err, domain.ErrAlreadyRevealed):
		return errors.Wrap(errors.CodeRoundAlreadyRevealed, "round is already revealed", err)
	default:
		return errors.Wrap(errors.CodeUnknown, "operation failed", err)
	}
}

// localizedMessage renders the user-facing message for an error code.
func localizedMessage(locale string, err *errors.Error) string {
	return errorsi18n.GetCatalog(locale).Format(string(err.Code), err.Metadata)
}

type httpErrorEnvelope struct {
	Error httpError `json:"error"`
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	writeHTTPMappedError(w, r, mapDomainError(err))
}

func writeHTTPMappedError(w http.ResponseWriter, r *http.Request, mapped *errors.Error) {
	locale := requestLocale(r)
	writeJSON(w, mapped.Code.HTTPStatus(), httpErrorEnvelope{
		Error: httpError{
			Code:    string(mapped.Code),
			Message: localizedMessage(locale, mapped),
		},
	})
}

// requestLocale extracts the first Accept-Language tag. Resolution against
// available catalogs happens downstream with a base-locale fallback.
func requestLocale(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return ""
	}
	first := strings.Split(header, ",")[0]
	return strings.TrimSpace(strings.Split(first, ";")[0])
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
