package charlm

import "github.com/pkg/errors"

var (
	// ErrConfiguration reports an unusable corpus or model setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrEncoding reports a context that does not fit the sequence length.
	ErrEncoding = errors.New("encoding error")
	// ErrTraining wraps any failure surfaced by a Model during Fit.
	ErrTraining = errors.New("training error")
	// ErrNoSession is returned when completing text before any training run committed.
	ErrNoSession = errors.New("no trained session")
	// ErrBusy is returned when a training run is already in flight.
	ErrBusy = errors.New("training already running")
)

// tag marks err as belonging to kind while keeping the original message.
func tag(kind, err error) error {
	return &taggedError{kind: kind, err: err}
}

type taggedError struct {
	kind error
	err  error
}

func (e *taggedError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *taggedError) Is(target error) bool { return target == e.kind }

func (e *taggedError) Unwrap() error { return e.err }
