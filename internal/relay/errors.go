package relay

// ValidationError reports a missing required field with a stable code that
// is returned to callers verbatim.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return e.Code
}

// Is matches any ValidationError with the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrCallsignRequired     = &ValidationError{Code: "callsign_required"}
	ErrFromCallsignRequired = &ValidationError{Code: "fromCallsign_required"}
	ErrChannelRequired      = &ValidationError{Code: "channel_required"}
	ErrTypeRequired         = &ValidationError{Code: "type_required"}
)
