// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import "errors"

// ErrorKind names a pipeline-level failure a caller can act on.
type ErrorKind int

const (
	// KindNoPapersFound means no record was identified by any search,
	// manual upload, snowball or supplementary round.
	KindNoPapersFound ErrorKind = iota + 1

	// KindNoSummaries means records were screened but none was judged
	// relevant.
	KindNoSummaries

	// KindInvalidQuery means the model rejected the subject as unsuitable
	// for academic search before anything was fetched.
	KindInvalidQuery
)

// String returns the sentinel name reported to users.
func (k ErrorKind) String() string {
	switch k {
	case KindNoPapersFound:
		return "NO_PAPERS_FOUND_AFTER_FALLBACK"
	case KindNoSummaries:
		return "NO_SUMMARIES_GENERATED"
	case KindInvalidQuery:
		return "INVALID_QUERY_FOR_ACADEMIC_SEARCH"
	}
	return "UNKNOWN"
}

// Error carries an ErrorKind and an optional cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
