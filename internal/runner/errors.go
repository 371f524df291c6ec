package runner

import "fmt"

// Kind classifies why a runner could not start or had to stop
type Kind int

const (
	// KindSetup means the configuration or wiring is invalid; nothing was generated
	KindSetup Kind = iota + 1
	// KindGeneration means a synthesized payload could not be decoded back
	KindGeneration
	// KindInterrupted means the runner was stopped while waiting
	KindInterrupted
	// KindUpstream means the firehose connection failed past the reconnect budget
	KindUpstream
	// KindListener means the listener kept failing past the retry budget
	KindListener
	// KindAlreadyRunning means Start was called on a runner that was already started
	KindAlreadyRunning
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindGeneration:
		return "generation"
	case KindInterrupted:
		return "interrupted"
	case KindUpstream:
		return "upstream"
	case KindListener:
		return "listener"
	case KindAlreadyRunning:
		return "already running"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure type returned by Start and Handle.Wait
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same Kind
var (
	ErrSetup          = &Error{Kind: KindSetup}
	ErrGeneration     = &Error{Kind: KindGeneration}
	ErrInterrupted    = &Error{Kind: KindInterrupted}
	ErrUpstream       = &Error{Kind: KindUpstream}
	ErrListener       = &Error{Kind: KindListener}
	ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning}
)

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("runner %s error: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("runner %s error: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare sentinel of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}
