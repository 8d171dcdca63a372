package render

import (
	"github.com/pkg/errors"
)

// Kind classifies the errors returned by this package so the driver can decide
// between retrying, dropping a frame and giving up.
type Kind int

const (
	// KindInit errors are returned from New. Nothing was left allocated.
	KindInit Kind = iota + 1

	// KindDevice errors come from the device or a queue and are fatal.
	KindDevice

	// KindRecorder errors mean a command buffer could not be recorded. The
	// frame it belonged to is dropped.
	KindRecorder

	// KindAllocator errors mean a buffer could not be created or filled.
	KindAllocator

	// KindSurfaceOutOfDate means the surface has to be recreated and the
	// targets rebuilt before rendering can continue.
	KindSurfaceOutOfDate
)

func (k Kind) String() string {
	switch k {
	case KindInit:
		return "init"
	case KindDevice:
		return "device"
	case KindRecorder:
		return "recorder"
	case KindAllocator:
		return "allocator"
	case KindSurfaceOutOfDate:
		return "surface out of date"
	}
	return "unknown"
}

// Error is the error type returned by the renderer.
type Error struct {
	Kind Kind

	// Op is the operation which failed, e.g. "acquire" or "upload".
	Op string

	Err error
}

func (e *Error) Error() string {
	msg := "render"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err == nil {
		return msg + ": " + e.Kind.String()
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every error of a kind match a bare sentinel of the same kind such
// as ErrSurfaceOutOfDate.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	// ErrSurfaceOutOfDate is matched by every error of KindSurfaceOutOfDate.
	ErrSurfaceOutOfDate = &Error{Kind: KindSurfaceOutOfDate}

	// ErrOutOfOrder is wrapped by recorder errors for calls made in the wrong
	// recording state.
	ErrOutOfOrder = errors.New("command recorded out of order")
)

// KindOf returns the kind of the outermost *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
