package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/jig/pkg/view"
)

var (
	ErrAmbiguousReference = errors.New("ambiguous reference")
	ErrNoSuchSymbol       = errors.New("no such symbol")
	ErrLeaseViolation     = errors.New("remote bookmark moved unexpectedly")
	ErrConflictedBookmark = errors.New("bookmark is conflicted")
	ErrCyclicRewrite      = errors.New("rewrite would create a cycle")
	ErrRootCommit         = errors.New("cannot rewrite the root commit")
	ErrCannotUndo         = errors.New("cannot undo operation")
)

// AmbiguousError reports a prefix or name that matched several objects.
type AmbiguousError struct {
	Symbol     string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %q matches %s", ErrAmbiguousReference, e.Symbol, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguousReference
}

// LeaseError reports that a remote bookmark is not where the last fetch
// recorded it.
type LeaseError struct {
	Bookmark string
	Remote   string
	Expected view.RefTarget
	Actual   view.RefTarget
	// Err is the transport error when the remote rejected the update itself.
	Err error
}

func (e *LeaseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("push %s to %s: %s (expected %s, found %s)",
		e.Bookmark, e.Remote, ErrLeaseViolation, describeTarget(e.Expected), describeTarget(e.Actual))
}

func (e *LeaseError) Is(target error) bool {
	return target == ErrLeaseViolation
}

func (e *LeaseError) Unwrap() error { return e.Err }

func describeTarget(t view.RefTarget) string {
	if t.IsAbsent() {
		return "nothing"
	}
	if id, ok := t.AsNormal(); ok {
		return id.Short(12)
	}
	ids := t.AddedIDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Short(12)
	}
	return "conflict(" + strings.Join(parts, ", ") + ")"
}
