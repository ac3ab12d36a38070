package idle

import (
	"errors"
	"fmt"

	"idlerealm.gg/internal/protocol"
)

// StartError rejects an activity-start command with a protocol error
// code. It is raised before any state mutation.
type StartError struct {
	Code string
	Msg  string
}

func (e *StartError) Error() string {
	return e.Code + ": " + e.Msg
}

func startErr(code, format string, args ...interface{}) *StartError {
	return &StartError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf maps an error to its wire code; anything that is not a
// StartError is reported as internal.
func CodeOf(err error) string {
	var se *StartError
	if errors.As(err, &se) {
		return se.Code
	}
	return protocol.ErrInternal
}
