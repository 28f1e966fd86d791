package models

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected-input error (§7): bad cid, bad extension,
// bad bitrate literal, unknown codec. It carries the offending field so
// callers can surface it directly without re-deriving which input failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError is an operation against an unknown cid, a removed file,
// or a missing thumbnail.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError is an upload that would silently overwrite an existing
// destination path (§6 upload semantics, HTTP 409-equivalent).
type ConflictError struct {
	Filename string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination already exists: %s", e.Filename)
}

// NewConflictError builds a ConflictError.
func NewConflictError(filename string) *ConflictError {
	return &ConflictError{Filename: filename}
}

// ProcessLaunchError wraps a failure to start a child process (missing
// binary, invalid argv).
type ProcessLaunchError struct {
	Argv []string
	Err  error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to launch process %v: %v", e.Argv, e.Err)
}

func (e *ProcessLaunchError) Unwrap() error { return e.Err }

// NewProcessLaunchError builds a ProcessLaunchError.
func NewProcessLaunchError(argv []string, err error) *ProcessLaunchError {
	return &ProcessLaunchError{Argv: argv, Err: err}
}

// ProcessRuntimeError wraps a nonzero child exit.
type ProcessRuntimeError struct {
	ExitCode int
}

func (e *ProcessRuntimeError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.ExitCode)
}

// NewProcessRuntimeError builds a ProcessRuntimeError.
func NewProcessRuntimeError(code int) *ProcessRuntimeError {
	return &ProcessRuntimeError{ExitCode: code}
}

// ProbeError wraps an ffprobe failure or an unparseable probe result (§7).
// Unlike ProcessLaunchError/ProcessRuntimeError, a probe failure is not
// fatal to ingest: smart ingest treats the source as unknown, so the
// upload goes through a full re-encode with the target profile rather
// than being rejected.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probing %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// NewProbeError builds a ProbeError.
func NewProbeError(path string, err error) *ProbeError {
	return &ProbeError{Path: path, Err: err}
}

// StateIOError wraps a failure to load or persist the state file (§7).
// Op distinguishes "load" (recoverable: fall back to defaults and keep
// running) from "save" (logged, but the in-memory registry stays
// authoritative until the next successful save).
type StateIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StateIOError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StateIOError) Unwrap() error { return e.Err }

// NewStateIOError builds a StateIOError.
func NewStateIOError(op, path string, err error) *StateIOError {
	return &StateIOError{Op: op, Path: path, Err: err}
}

// Sentinel validation errors used by config and profile validation.
var (
	ErrUnknownCodec       = errors.New("unknown codec")
	ErrInvalidBitrate     = errors.New("bitrate does not match /^\\d+(\\.\\d+)?[kKmM]$/")
	ErrCIDOutOfRange      = errors.New("cid out of range")
	ErrMaxChannelsExceeds = errors.New("max_channels must be <= 254: the deterministic allocator's multicast octet wraps at 254")
)
