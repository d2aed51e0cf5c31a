package utils

// AppError attaches the failing operation and an operator-facing message to
// an underlying error. It unwraps to the cause so errors.Is works through it.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	s := e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError wraps err with the operation name and message. err may be nil
// when the failure has no underlying cause.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}
