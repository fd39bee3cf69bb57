// Package ntriperr defines the error taxonomy shared by the caster's
// protocol front-end, fan-out engine, and catalog. Each Kind carries a
// propagation tag (local/retry vs surfaced-to-peer) as described by the
// caster's error handling design.
package ntriperr

import "fmt"

// Kind identifies a category of failure the caster can encounter while
// servicing a connection.
type Kind int

const (
	// KindMalformedRequest means the first line or headers could not be parsed.
	KindMalformedRequest Kind = iota
	// KindAuthMissing means a subscriber connected without an Authorization header.
	KindAuthMissing
	// KindAuthFailed means credentials, mount password, or ownership didn't match.
	KindAuthFailed
	// KindMountNotFound means a subscriber asked for an unknown mount.
	KindMountNotFound
	KindDuplicateUpload
	KindPeerClosed
	KindSlowConsumer
	KindCatalogError
	KindParserTimeout
	KindInternalPanic
)

// Propagation describes whether an error kind is handled locally or must be
// surfaced to the remote peer as a protocol response.
type Propagation rune

const (
	// Local means the caller should retry, log, or clean up locally.
	Local Propagation = 'L'
	// Surface means the caller must write a protocol-appropriate response.
	Surface Propagation = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed_request"
	case KindAuthMissing:
		return "auth_missing"
	case KindAuthFailed:
		return "auth_failed"
	case KindMountNotFound:
		return "mount_not_found"
	case KindDuplicateUpload:
		return "duplicate_upload"
	case KindPeerClosed:
		return "peer_closed"
	case KindSlowConsumer:
		return "slow_consumer"
	case KindCatalogError:
		return "catalog_error"
	case KindParserTimeout:
		return "parser_timeout"
	case KindInternalPanic:
		return "internal_panic"
	default:
		return "unknown"
	}
}

// Propagation returns how this kind of error should be handled by the caller.
func (k Kind) Propagation() Propagation {
	switch k {
	case KindMalformedRequest, KindAuthMissing, KindAuthFailed, KindMountNotFound, KindCatalogError:
		return Surface
	default:
		return Local
	}
}

// Error wraps an underlying cause with a Kind so call sites can branch on
// category without string matching.
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns KindInternalPanic since the caller has no better
// information to surface.
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return KindInternalPanic
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Sentinel errors returned by the catalog (spec.md §4.1), kept as plain
// sentinels (rather than *Error) because equality checks against them are
// used directly by VerifyDownload callers the way the teacher's SourceService
// sentinels (ErrorNotAuthorized etc.) were used.
var (
	ErrNoMount    = fmt.Errorf("mount not found")
	ErrNoUser     = fmt.Errorf("user not found")
	ErrBadPassword = fmt.Errorf("bad password")
	ErrForbidden  = fmt.Errorf("not the owner of this mount")
	// ErrNotFound is returned by catalog mutations (update/delete) whose
	// target row doesn't exist, independent of which table it is.
	ErrNotFound = fmt.Errorf("not found")
)
