package status

/*
Status values returned by every fallible operation of the index.

Structured like the gRPC status surface: a code plus an optional detail
string. The OK value carries no detail to keep the common path cheap.
EndOfData is not an error; it tells a scanning caller that the range is
exhausted.
*/

import "fmt"

// Code enumerates the recognized status codes. Semantics follow the
// usual RPC-status conventions.
type Code int

const (
	// OK is not an error; returned on success.
	OK Code = 0
	// Cancelled: the operation was cancelled, typically by the caller.
	Cancelled Code = 1
	// Unknown: an error that cannot be classified further.
	Unknown Code = 2
	// InvalidArgument: the caller passed an argument that is bad
	// regardless of system state, e.g. an over-long key.
	InvalidArgument Code = 3
	// DeadlineExceeded: a deadline expired before completion.
	DeadlineExceeded Code = 4
	// NotFound: a requested entity does not exist.
	NotFound Code = 5
	// AlreadyExists: an entity being created already exists.
	AlreadyExists Code = 6
	// PermissionDenied: the caller may not perform the operation.
	PermissionDenied Code = 7
	// ResourceExhausted: some resource, such as heap space, ran out.
	ResourceExhausted Code = 8
	// FailedPrecondition: the system is not in a state required for
	// the operation, and retrying without a fix will not help.
	FailedPrecondition Code = 9
	// Aborted: the operation was aborted, typically by a concurrency
	// conflict; retry at a higher level.
	Aborted Code = 10
	// OutOfRange: the operation was attempted past the valid range.
	OutOfRange Code = 11
	// Unimplemented: the operation is not supported.
	Unimplemented Code = 12
	// Internal: an invariant expected by the implementation was broken.
	Internal Code = 13
	// Unavailable: a transient condition; retry with backoff.
	Unavailable Code = 14
	// DataLoss: unrecoverable data loss or corruption.
	DataLoss Code = 15
	// Unauthenticated: no valid credentials for the operation.
	Unauthenticated Code = 16
	// Failed: the operation failed in a way the caller can usually
	// recover from, e.g. a value buffer that was too small.
	Failed Code = 17
	// NotInitialized: the object is not yet ready for use.
	NotInitialized Code = 18
	// NotValid: a required handle or object is not valid.
	NotValid Code = 19
	// EndOfData: not an error; all available data has been returned.
	EndOfData Code = 20
)

var codeNames = map[Code]string{
	OK:                 "OK",
	Cancelled:          "CANCELLED",
	Unknown:            "UNKNOWN",
	InvalidArgument:    "INVALID_ARGUMENT",
	DeadlineExceeded:   "DEADLINE_EXCEEDED",
	NotFound:           "NOT_FOUND",
	AlreadyExists:      "ALREADY_EXISTS",
	PermissionDenied:   "PERMISSION_DENIED",
	ResourceExhausted:  "RESOURCE_EXHAUSTED",
	FailedPrecondition: "FAILED_PRECONDITION",
	Aborted:            "ABORTED",
	OutOfRange:         "OUT_OF_RANGE",
	Unimplemented:      "UNIMPLEMENTED",
	Internal:           "INTERNAL",
	Unavailable:        "UNAVAILABLE",
	DataLoss:           "DATA_LOSS",
	Unauthenticated:    "UNAUTHENTICATED",
	Failed:             "FAILED",
	NotInitialized:     "NOT_INITIALIZED",
	NotValid:           "NOT_VALID",
	EndOfData:          "END_OF_DATA",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Status is a code with an optional human-readable detail.
// The zero value is OK.
type Status struct {
	code    Code
	details string
}

// Okay is the pre-built OK instance.
var Okay = Status{}

// New builds a status with the given code and detail.
func New(code Code, details string) Status {
	return Status{code: code, details: details}
}

// Newf builds a status with a formatted detail.
func Newf(code Code, format string, args ...interface{}) Status {
	return Status{code: code, details: fmt.Sprintf(format, args...)}
}

// Ok reports whether the status is OK.
func (s Status) Ok() bool { return s.code == OK }

// NotOk reports whether the status carries a non-OK code.
func (s Status) NotOk() bool { return s.code != OK }

// Code returns the status code.
func (s Status) Code() Code { return s.code }

// Message returns the detail string, empty for OK.
func (s Status) Message() string { return s.details }

func (s Status) String() string {
	if s.details == "" {
		return s.code.String()
	}
	return s.code.String() + ": " + s.details
}
