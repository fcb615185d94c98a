package domain

import "errors"

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrRoomFull          = errors.New("room is full")
	ErrNotAMember        = errors.New("not a member of the room")
	ErrTargetUnreachable = errors.New("target is not in your room")
	ErrNegotiationFailed = errors.New("peer negotiation failed")
	ErrMalformed         = errors.New("malformed input")
	ErrRoomNotFound      = errors.New("room not found")
)

// Code maps an error to the code sent in "error" events.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrTargetUnreachable):
		return "target_unreachable"
	case errors.Is(err, ErrNegotiationFailed):
		return "negotiation_failed"
	case errors.Is(err, ErrMalformed):
		return "bad_payload"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	default:
		return "internal"
	}
}

// FromCode is the inverse of Code, used by clients decoding "error" events.
func FromCode(code string) error {
	switch code {
	case "not_authenticated":
		return ErrNotAuthenticated
	case "room_full":
		return ErrRoomFull
	case "not_a_member":
		return ErrNotAMember
	case "target_unreachable":
		return ErrTargetUnreachable
	case "negotiation_failed":
		return ErrNegotiationFailed
	case "bad_payload":
		return ErrMalformed
	case "room_not_found":
		return ErrRoomNotFound
	default:
		return errors.New(code)
	}
}
