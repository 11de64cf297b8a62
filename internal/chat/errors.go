package chat

import "errors"

var (
	// ErrValidation marks a malformed or incomplete inbound event.
	ErrValidation = errors.New("validation error")
	// ErrDelivery marks a failure to push a frame to one member.
	ErrDelivery = errors.New("delivery error")
	// ErrRoomClosed is the eviction reason for members of a stopped room.
	ErrRoomClosed = errors.New("room closed")
	// ErrSessionClosed is returned when a closed session receives an event.
	ErrSessionClosed = errors.New("session closed")
)
