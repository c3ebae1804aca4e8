package model

import "errors"

// Common errors used across the application
var (
	// Request errors
	ErrBadRequest      = errors.New("bad request")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidRealm    = errors.New("invalid realm")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")

	// Credential and session errors
	ErrAuthRequired       = errors.New("login required")
	ErrUsernameExists     = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyLoggedIn    = errors.New("user is already logged in")
	ErrSessionNotFound    = errors.New("user is not online")
	ErrNotIdle            = errors.New("user is not idle")
	ErrForbidden          = errors.New("operation not permitted for this realm")

	// Room errors
	ErrNoRoom          = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomInGame      = errors.New("room is in game")
	ErrRoomPrivate     = errors.New("room is private")
	ErrRoomNotReady    = errors.New("room is not ready")
	ErrAlreadyIn       = errors.New("user is already in a room")
	ErrNotInRoom       = errors.New("user is not in a room")
	ErrNotHost         = errors.New("user is not the room host")
	ErrNoInvite        = errors.New("no matching invite")
	ErrDuplicateInvite = errors.New("invite already pending")
	ErrInviteSelf      = errors.New("cannot invite yourself")

	// Marketplace errors
	ErrGameNotFound    = errors.New("game not found")
	ErrUnknownGame     = errors.New("unknown game")
	ErrGameExists      = errors.New("game name already taken")
	ErrNotPublisher    = errors.New("only the publisher may modify this game")
	ErrVersionNotFound = errors.New("game version not found")
	ErrArtifactTooBig  = errors.New("artifact exceeds maximum size")
	ErrBlobNotFound    = errors.New("artifact blob not found")

	// Transport errors
	ErrOversizeFrame         = errors.New("frame exceeds maximum size")
	ErrMalformedFrame        = errors.New("malformed frame")
	ErrTransferTimeout       = errors.New("transfer timed out")
	ErrDownstreamUnavailable = errors.New("database unavailable")
	ErrTransportClosed       = errors.New("transport closed")

	// Game instance errors
	ErrNoPortAvailable = errors.New("no game port available")
	ErrInstanceExists  = errors.New("game instance already running for room")
	ErrInstanceMissing = errors.New("no game instance for room")
	ErrInvalidTicket   = errors.New("invalid game ticket")
)
