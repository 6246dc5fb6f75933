package domain

import "errors"

// Broker error taxonomy. Every failure of a room operation maps onto one of
// these sentinels and is reported back to the originating connection as a
// structured rejection, never as a process fault.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrPasswordRequired   = errors.New("password required")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrRoomFull           = errors.New("room is full")
	ErrAlreadyInRoom      = errors.New("already in a room")
	ErrReconnectExpired   = errors.New("reconnect window expired")
	ErrUnknownParticipant = errors.New("unknown participant")
)
