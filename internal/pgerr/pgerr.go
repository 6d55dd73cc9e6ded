// Package pgerr defines the bounded error taxonomy the gateway exposes.
// Every failure, from validation to the wire, is mapped onto exactly one
// Kind so that callers (human or agent) can branch on a stable signal
// instead of parsing server message text.
package pgerr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jfelczak/pgward/internal/scrub"
)

// Kind is one category of the failure taxonomy.
type Kind string

const (
	// KindResourceExhausted: no connection became available within the
	// acquire timeout, or the server reported insufficient resources.
	KindResourceExhausted Kind = "resource_exhausted"
	// KindClassMismatch: the declared class does not match what the parser
	// detected for the statement.
	KindClassMismatch Kind = "class_mismatch"
	// KindInvalidIdentifier: an identifier failed the binding grammar.
	KindInvalidIdentifier Kind = "invalid_identifier"
	// KindValidation: malformed request, unparseable SQL, bad parameters,
	// or an oversized statement or result.
	KindValidation Kind = "validation_error"
	// KindMultiStatement: more than one statement in a single request.
	KindMultiStatement Kind = "multi_statement_rejected"
	// KindDeadlineExceeded: the execution deadline fired. Whether the
	// statement committed on the server is unknown.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindPermissionDenied: the server refused the action, or the class is
	// disabled on this gateway.
	KindPermissionDenied Kind = "permission_denied"
	// KindConstraintViolation: an integrity constraint rejected the data.
	KindConstraintViolation Kind = "constraint_violation"
	// KindConnectionLost: the connection died mid-flight.
	KindConnectionLost Kind = "connection_lost"
	// KindUnknown: everything else, with the scrubbed server message.
	KindUnknown Kind = "unknown"
)

// Retryable reports whether a caller may reasonably retry after this kind
// of failure. Only transient resource and transport failures qualify;
// retrying a deadline overrun could double-apply a write.
func (k Kind) Retryable() bool {
	return k == KindResourceExhausted || k == KindConnectionLost
}

// Poisons reports whether the connection that produced this failure can no
// longer be trusted and must be discarded instead of returned to the pool.
// A connection whose deadline fired may still be streaming an abandoned
// result; a lost connection is dead by definition.
func (k Kind) Poisons() bool {
	return k == KindDeadlineExceeded || k == KindConnectionLost
}

// Error is the one error type the gateway returns. Message text is already
// scrubbed of credential material; Code carries the SQLSTATE when the
// server reported one.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the caller may retry this failure.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// New builds an Error for failures the gateway itself detects. The message
// is authored by the gateway, so it carries no credential material and
// does not pass through the scrubber.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Classifier maps raw driver, network, and context errors into the
// taxonomy, scrubbing message text on the way out. The original error is
// deliberately not retained: server messages can echo connection strings,
// and an unwrap chain would leak what the scrubber removed.
type Classifier struct {
	scrubber *scrub.Scrubber
}

// NewClassifier builds a Classifier around the given scrubber.
func NewClassifier(s *scrub.Scrubber) *Classifier {
	return &Classifier{scrubber: s}
}

// Classify converts err into an *Error with exactly one Kind. An err that
// already is an *Error passes through unchanged.
func (c *Classifier) Classify(err error) *Error {
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	kind := KindUnknown
	code := ""

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		kind = kindForSQLState(pgErr.Code)
		code = pgErr.Code
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		kind = KindDeadlineExceeded
	case isConnectionFailure(err):
		kind = KindConnectionLost
	}

	return &Error{Kind: kind, Code: code, Message: c.scrubber.String(err.Error())}
}

// kindForSQLState maps PostgreSQL SQLSTATE codes onto the taxonomy.
// Unlisted codes stay Unknown rather than being guessed at; the scrubbed
// server message still reaches the caller.
func kindForSQLState(code string) Kind {
	switch {
	case code == "57014":
		// query_canceled: statement_timeout or our own cancel
		return KindDeadlineExceeded
	case code == "57P01" || code == "57P02" || code == "57P03":
		// admin_shutdown, crash_shutdown, cannot_connect_now
		return KindConnectionLost
	case code == "42501":
		// insufficient_privilege
		return KindPermissionDenied
	case strings.HasPrefix(code, "28"):
		// invalid authorization specification
		return KindPermissionDenied
	case strings.HasPrefix(code, "23"):
		// integrity constraint violation
		return KindConstraintViolation
	case strings.HasPrefix(code, "53"):
		// insufficient resources (too many connections, out of memory)
		return KindResourceExhausted
	case strings.HasPrefix(code, "08"):
		// connection exception
		return KindConnectionLost
	}
	return KindUnknown
}

// isConnectionFailure detects transport-level failures that arrive without
// a SQLSTATE: closed sockets, resets, and pgx's dead-connection errors.
func isConnectionFailure(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe")
}
