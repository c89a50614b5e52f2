// Package errs is the flat, sentinel-coded error space shared by pf, sp,
// and am. Every layer returns a *Error unchanged up the call stack; no
// layer recovers an error internally, and EOF is a normal iteration
// terminator rather than a failure.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the sentinel error conditions named in spec §7.
type Kind int

const (
	// Resource
	NoMemory Kind = iota
	NoBuf
	ScanTabFull
	FTabFull

	// Misuse
	PageFixed
	PageNotInBuf
	PageUnfixed
	InvalidPage
	FD
	InvalidScanDesc
	InvalidOpToScan
	InvalidAttrType
	InvalidAttrLength
	InvalidValue

	// Absence
	NotFound
	EOF

	// I/O
	IncompleteRead
	IncompleteWrite
	HdrRead
	HdrWrite
	FileOpen
	Unix

	// Consistency
	PageFree
	PageInBuf
	HashNotFound
	HashPageExist
	IntError
)

var names = map[Kind]string{
	NoMemory:          "NO_MEMORY",
	NoBuf:             "NO_BUF",
	ScanTabFull:       "SCAN_TAB_FULL",
	FTabFull:          "FTAB_FULL",
	PageFixed:         "PAGE_FIXED",
	PageNotInBuf:      "PAGE_NOT_IN_BUF",
	PageUnfixed:       "PAGE_UNFIXED",
	InvalidPage:       "INVALID_PAGE",
	FD:                "FD",
	InvalidScanDesc:   "INVALID_SCAN_DESC",
	InvalidOpToScan:   "INVALID_OP_TO_SCAN",
	InvalidAttrType:   "INVALID_ATTR_TYPE",
	InvalidAttrLength: "INVALID_ATTR_LENGTH",
	InvalidValue:      "INVALID_VALUE",
	NotFound:          "NOT_FOUND",
	EOF:               "EOF",
	IncompleteRead:    "INCOMPLETE_READ",
	IncompleteWrite:   "INCOMPLETE_WRITE",
	HdrRead:           "HDR_READ",
	HdrWrite:          "HDR_WRITE",
	FileOpen:          "FILE_OPEN",
	Unix:              "UNIX",
	PageFree:          "PAGE_FREE",
	PageInBuf:         "PAGE_IN_BUF",
	HashNotFound:      "HASH_NOT_FOUND",
	HashPageExist:     "HASH_PAGE_EXIST",
	IntError:          "INT_ERROR",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the concrete error value every layer returns. Op names the
// operation that failed (e.g. "pf.GetThisPage"); Detail is optional
// free-form context (a page number, a file name).
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error // wrapped cause, if any (e.g. an os.PathError)
}

func (e *Error) Error() string {
	if e.Detail != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Detail, e.Err)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a sentinel error for op with no extra context.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Newf builds a sentinel error for op with formatted detail.
func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds a sentinel error for op, wrapping an underlying cause
// (typically an *os.PathError from the I/O namespace).
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Is reports whether err (or anything it wraps) is an *Error of kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// IsEOF is a convenience check used by every scan/iteration caller —
// EOF is a normal terminator, not a failure (spec §7).
func IsEOF(err error) bool { return Is(err, EOF) }
