// Package loaderror defines the typed error kinds a load can fail
// with, each wrapping the underlying cause with github.com/pkg/errors
// so the original stack and message survive into logs while callers
// can still switch on the kind with errors.As.
package loaderror

import "github.com/pkg/errors"

// Kind classifies why a load terminated.
type Kind int

const (
	// HistoryAltered: resume verification found that a previously
	// ingested revision no longer hashes to the recorded identifier.
	HistoryAltered Kind = iota
	// SvnProtocolError: the SVN session failed (network, permission,
	// malformed stream).
	SvnProtocolError
	// SvndiffApplyError: a text delta could not be applied to the
	// prior file content.
	SvndiffApplyError
	// WorkingTreeIoError: a filesystem operation on the scratch
	// directory failed.
	WorkingTreeIoError
	// ArchiveError: the archive client rejected a batch after
	// exhausting retries.
	ArchiveError
	// UnsupportedRevisionShape: the editor encountered a construct it
	// cannot classify (e.g. an unknown SVN node kind).
	UnsupportedRevisionShape
)

func (k Kind) String() string {
	switch k {
	case HistoryAltered:
		return "history_altered"
	case SvnProtocolError:
		return "svn_protocol_error"
	case SvndiffApplyError:
		return "svndiff_apply_error"
	case WorkingTreeIoError:
		return "working_tree_io_error"
	case ArchiveError:
		return "archive_error"
	case UnsupportedRevisionShape:
		return "unsupported_revision_shape"
	default:
		return "unknown"
	}
}

// Error is a typed, revision-scoped load failure.
type Error struct {
	Kind  Kind
	Rev   int64 // 0 if not revision-scoped
	cause error
}

func (e *Error) Error() string {
	if e.Rev != 0 {
		return errors.Wrapf(e.cause, "%s at r%d", e.Kind, e.Rev).Error()
	}
	return errors.Wrap(e.cause, e.Kind.String()).Error()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New builds a revision-scoped typed error.
func New(kind Kind, rev int64, cause error) *Error {
	return &Error{Kind: kind, Rev: rev, cause: cause}
}

// NewVisit builds a typed error with no specific revision (resume
// verification, session setup, snapshot submission).
func NewVisit(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Is reports whether err is a loaderror.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// As extracts a *Error from err, for callers that need to forward an
// already-typed failure (e.g. one raised deep inside a Replay Editor
// callback) instead of re-wrapping it under a different kind.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
