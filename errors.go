package asyncleak

import (
	"errors"
	"fmt"
)

// FatalKind classifies why the harness stopped.
type FatalKind int

const (
	// FatalStartup: compiling or instantiating the module failed.
	FatalStartup FatalKind = iota + 1
	// FatalInvariant: a fulfilled result did not match Config.Expected.
	FatalInvariant
	// FatalCall: resolving or invoking the entry function failed.
	FatalCall
	// FatalRejection: a result was rejected under FailOnRejected.
	FatalRejection
)

func (k FatalKind) String() string {
	switch k {
	case FatalStartup:
		return "startup"
	case FatalInvariant:
		return "invariant violation"
	case FatalCall:
		return "call failure"
	case FatalRejection:
		return "rejection"
	default:
		return fmt.Sprintf("FatalKind(%d)", int(k))
	}
}

// FatalError is the only error the harness returns. None is retried or
// recovered from; the process is expected to exit on it.
type FatalError struct {
	Kind FatalKind
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a FatalError of the given kind.
func IsFatal(err error, kind FatalKind) bool {
	var fe *FatalError
	return errors.As(err, &fe) && fe.Kind == kind
}

func fatalf(kind FatalKind, format string, args ...any) *FatalError {
	return &FatalError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
