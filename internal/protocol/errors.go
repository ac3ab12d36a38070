package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrNotFound    = "E_NOT_FOUND"
	ErrNotOwner    = "E_NOT_OWNER"
	ErrLevelTooLow = "E_LEVEL_TOO_LOW"
	ErrNoResource  = "E_NO_RESOURCE"
	ErrNoCapacity  = "E_NO_CAPACITY"
	ErrConflict    = "E_CONFLICT"
	ErrNotLive     = "E_NOT_LIVE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNotFound:        {},
	ErrNotOwner:        {},
	ErrLevelTooLow:     {},
	ErrNoResource:      {},
	ErrNoCapacity:      {},
	ErrConflict:        {},
	ErrNotLive:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
