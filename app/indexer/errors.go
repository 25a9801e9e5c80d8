package indexer

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// ErrorKind classifies a bootstrap failure. Every kind is fatal.
type ErrorKind int

const (
	KindConfigLoad ErrorKind = iota + 1
	KindAbiNotFound
	KindAbiParse
	KindMissingEndpoint
	KindEngineConstruct
	KindEngineStart
)

// Sentinels for errors.Is against a *BootstrapError.
var (
	ErrConfigLoad      = errors.New("ConfigLoadError")
	ErrAbiNotFound     = errors.New("AbiNotFoundError")
	ErrAbiParse        = errors.New("AbiParseError")
	ErrMissingEndpoint = errors.New("MissingEndpointError")
	ErrEngineConstruct = errors.New("EngineConstructError")
	ErrEngineStart     = errors.New("EngineStartError")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConfigLoad:
		return ErrConfigLoad
	case KindAbiNotFound:
		return ErrAbiNotFound
	case KindAbiParse:
		return ErrAbiParse
	case KindMissingEndpoint:
		return ErrMissingEndpoint
	case KindEngineConstruct:
		return ErrEngineConstruct
	case KindEngineStart:
		return ErrEngineStart
	default:
		return nil
	}
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// BootstrapError is the result of a failed bootstrap step.
type BootstrapError struct {
	Kind ErrorKind
	// Step is the state the sequencer was in when the step failed.
	Step State
	Path string
	// Err carries the stack captured where the failure was detected.
	Err error
}

func newBootstrapError(kind ErrorKind, step State, path string, err error) *BootstrapError {
	return &BootstrapError{Kind: kind, Step: step, Path: path, Err: err}
}

func (e *BootstrapError) Error() string { return e.Err.Error() }

func (e *BootstrapError) Unwrap() error { return e.Err }

func (e *BootstrapError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Format prints the stack trace of the underlying failure for %+v.
func (e *BootstrapError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "%s (step=%s)\n%+v", e.Kind, e.Step, e.Err)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// describe renders err with the most detail available: a stack trace when one was captured,
// otherwise its message.
func describe(err error) string {
	var bootErr *BootstrapError
	if errors.As(err, &bootErr) {
		return fmt.Sprintf("%+v", bootErr)
	}
	type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", err)
	}
	return err.Error()
}
