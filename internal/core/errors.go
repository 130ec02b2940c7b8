package core

import (
	"errors"
	"fmt"
)

// Exit codes for the np CLI.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitNotFound = 4
	ExitOffline  = 6
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error { return e.Err }

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}

// ErrorKind classifies poll failures.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindConnectionRefused
	KindTLSFailure
	KindParseFailure
	KindUnreachable
	KindPartialData
	KindNoProtocolMatched
	KindInvalidEndpoint
	// KindCanceled marks an exchange abandoned because the caller's context
	// was canceled. It is not a server failure.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection_refused"
	case KindTLSFailure:
		return "tls_failure"
	case KindParseFailure:
		return "parse_failure"
	case KindUnreachable:
		return "unreachable"
	case KindPartialData:
		return "partial_data"
	case KindNoProtocolMatched:
		return "no_protocol_matched"
	case KindInvalidEndpoint:
		return "invalid_endpoint"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// TransportError reports a failed HTTP exchange.
type TransportError struct {
	Kind   ErrorKind
	Method string
	URI    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URI, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AdapterError reports a protocol adapter failure.
type AdapterError struct {
	Kind     ErrorKind
	Protocol string
	Err      error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %s: %v", e.Protocol, e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// FactoryError reports a failure to build an adapter.
type FactoryError struct {
	Kind ErrorKind
	Err  error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("adapter factory: %s: %v", e.Kind, e.Err)
}

func (e *FactoryError) Unwrap() error { return e.Err }

// KindOf returns the outermost classified kind of err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var factoryErr *FactoryError
	if errors.As(err, &factoryErr) {
		return factoryErr.Kind
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr.Kind
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Kind
	}
	return KindNone
}

// TransportKindOf returns the transport kind wrapped anywhere inside err.
func TransportKindOf(err error) ErrorKind {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Kind
	}
	return KindNone
}
