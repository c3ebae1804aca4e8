package wire

import (
	"context"
	"errors"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// Error codes carried in the code field of error envelopes
const (
	CodeBadRequest            = "BadRequest"
	CodeAuthRequired          = "AuthRequired"
	CodeConflict              = "Conflict"
	CodeAlreadyLoggedIn       = "AlreadyLoggedIn"
	CodeNotFound              = "NotFound"
	CodeForbidden             = "Forbidden"
	CodeFull                  = "Full"
	CodeInGame                = "InGame"
	CodePrivate               = "Private"
	CodeNoInvite              = "NoInvite"
	CodeUnknownGame           = "UnknownGame"
	CodeAlreadyIn             = "AlreadyIn"
	CodeOversizeFrame         = "OversizeFrame"
	CodeDownstreamUnavailable = "DownstreamUnavailable"
	CodeTimeout               = "Timeout"
	CodeTransportClosed       = "TransportClosed"
	CodeInternal              = "Internal"
)

// CodeOf maps an error onto its wire code
func CodeOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}

	switch {
	case errors.Is(err, model.ErrBadRequest),
		errors.Is(err, model.ErrUnknownCommand),
		errors.Is(err, model.ErrInvalidUsername),
		errors.Is(err, model.ErrInvalidPassword),
		errors.Is(err, model.ErrInvalidRealm),
		errors.Is(err, model.ErrInvalidRating),
		errors.Is(err, model.ErrMalformedFrame),
		errors.Is(err, model.ErrInviteSelf),
		errors.Is(err, model.ErrArtifactTooBig):
		return CodeBadRequest
	case errors.Is(err, model.ErrAuthRequired):
		return CodeAuthRequired
	case errors.Is(err, model.ErrUsernameExists),
		errors.Is(err, model.ErrGameExists),
		errors.Is(err, model.ErrDuplicateInvite),
		errors.Is(err, model.ErrNotIdle),
		errors.Is(err, model.ErrRoomNotReady),
		errors.Is(err, model.ErrInstanceExists):
		return CodeConflict
	case errors.Is(err, model.ErrAlreadyLoggedIn):
		return CodeAlreadyLoggedIn
	case errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrNoRoom),
		errors.Is(err, model.ErrNotInRoom),
		errors.Is(err, model.ErrGameNotFound),
		errors.Is(err, model.ErrVersionNotFound),
		errors.Is(err, model.ErrBlobNotFound),
		errors.Is(err, model.ErrInstanceMissing):
		return CodeNotFound
	case errors.Is(err, model.ErrForbidden),
		errors.Is(err, model.ErrNotHost),
		errors.Is(err, model.ErrNotPublisher),
		errors.Is(err, model.ErrInvalidCredentials),
		errors.Is(err, model.ErrInvalidTicket):
		return CodeForbidden
	case errors.Is(err, model.ErrRoomFull):
		return CodeFull
	case errors.Is(err, model.ErrRoomInGame):
		return CodeInGame
	case errors.Is(err, model.ErrRoomPrivate):
		return CodePrivate
	case errors.Is(err, model.ErrNoInvite):
		return CodeNoInvite
	case errors.Is(err, model.ErrUnknownGame):
		return CodeUnknownGame
	case errors.Is(err, model.ErrAlreadyIn):
		return CodeAlreadyIn
	case errors.Is(err, model.ErrOversizeFrame):
		return CodeOversizeFrame
	case errors.Is(err, model.ErrDownstreamUnavailable),
		errors.Is(err, model.ErrNoPortAvailable):
		return CodeDownstreamUnavailable
	case errors.Is(err, model.ErrTransferTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, model.ErrTransportClosed):
		return CodeTransportClosed
	default:
		return CodeInternal
	}
}

// RemoteError is an error envelope received from a peer
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// Is matches any sentinel that maps onto the same code, so callers can use
// errors.Is(err, model.ErrRoomFull) on replies
func (e *RemoteError) Is(target error) bool {
	if _, ok := target.(*RemoteError); ok {
		return false
	}
	code := CodeOf(target)
	return code != CodeInternal && code == e.Code
}
