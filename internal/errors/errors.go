// Package errors provides centralized error definitions and error handling utilities
// for stagectl. It defines the admission/staging failure taxonomy, semantic error
// types, error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain errors map one to one onto the ways a batch run can fail:
//   - PolicyViolation: ownership, identity or single-action rule declined a request
//   - ClassifierFailure: the external diff classifier exited non-zero
//   - InfrastructureFailure: remote checkout, database or network trouble (transient)
//   - CapacityExhaustion: no staging slot could take a group during planning
//   - LockContention: the exclusivity session could not be acquired in time
//   - PartialCommitFailure: some proposal groups failed to commit
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewPolicyViolation("ownership", "Expected submission from devel package devel:tools/gcc").
//		WithRequestID(4242)
//
//	var pv *errors.PolicyViolation
//	if errors.As(err, &pv) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Catalog sentinel errors
var (
	// ErrRequestNotFound indicates that a request is not in the open set.
	ErrRequestNotFound = New("request not found")
	// ErrStagingNotFound indicates that a staging slot does not exist.
	ErrStagingNotFound = New("staging not found")
	// ErrAlreadyStaged indicates that a request already sits in another staging.
	ErrAlreadyStaged = New("request already staged")
	// ErrNotStaged indicates that a request is not in any staging.
	ErrNotStaged = New("request not staged")
	// ErrNotAcceptable indicates that a staging is not in an acceptable state.
	ErrNotAcceptable = New("staging not acceptable")
)

// Session and proposal sentinel errors
var (
	// ErrLockHeld indicates that another process owns the exclusivity lock.
	ErrLockHeld = New("lock held by another process")
	// ErrLockTimeout indicates that the bounded wait for the lock ran out.
	ErrLockTimeout = New("timed out waiting for lock")
	// ErrLockLost indicates that a held lease expired or was taken over
	// before the operation finished.
	ErrLockLost = New("lock lost while held")
	// ErrEmptyProposal indicates that planning produced nothing to commit.
	ErrEmptyProposal = New("empty proposal")
	// ErrProposalAborted indicates that the human amendment step was cancelled.
	ErrProposalAborted = New("proposal aborted")
)

// Snapshot sentinel errors
var (
	// ErrSnapshotNotFound indicates the package does not exist at the requested location.
	ErrSnapshotNotFound = New("package snapshot not found")
)

// General sentinel errors
var (
	ErrTimeout      = New("operation timed out")
	ErrCanceled     = New("operation canceled")
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// StageError is the base interface for all stagectl errors.
type StageError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	// IsRetryable returns true if the operation may succeed on a later run.
	IsRetryable() bool
	// IsUserFacing returns true if the message is safe to show to submitters.
	IsUserFacing() bool
}

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// Message returns the bare message without prefix or cause.
func (e *baseError) Message() string { return e.message }

func format(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PolicyViolation is a decline produced by one of the admission rules. The
// message is shown to the submitter verbatim and the request is never retried.
//
// Example:
//
//	err := errors.NewPolicyViolation("single-action", "Only one action per request").WithRequestID(12)
//	fmt.Println(err) // "policy violation [request=12, rule=single-action]: Only one action per request"
type PolicyViolation struct {
	baseError
	RequestID int64
	Rule      string
}

// NewPolicyViolation creates a new PolicyViolation for the named rule.
func NewPolicyViolation(rule, message string) *PolicyViolation {
	return &PolicyViolation{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Rule: rule,
	}
}

// WithRequestID adds the request id to the error context.
func (e *PolicyViolation) WithRequestID(id int64) *PolicyViolation {
	e.RequestID = id
	return e
}

func (e *PolicyViolation) Error() string {
	var parts []string
	if e.RequestID != 0 {
		parts = append(parts, fmt.Sprintf("request=%d", e.RequestID))
	}
	if e.Rule != "" {
		parts = append(parts, fmt.Sprintf("rule=%s", e.Rule))
	}
	return format("policy violation", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *PolicyViolation) Is(target error) bool {
	if _, ok := target.(*PolicyViolation); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ClassifierFailure is a decline caused by the diff classifier exiting
// non-zero. Output holds the raw classifier output for human diagnosis.
type ClassifierFailure struct {
	baseError
	RequestID int64
	ExitCode  int
	Output    string
}

// NewClassifierFailure creates a new ClassifierFailure.
func NewClassifierFailure(exitCode int, output string) *ClassifierFailure {
	return &ClassifierFailure{
		baseError: baseError{
			message:    "Output of check script:\n" + output,
			severity:   SeverityWarning,
			userFacing: true,
		},
		ExitCode: exitCode,
		Output:   output,
	}
}

// WithRequestID adds the request id to the error context.
func (e *ClassifierFailure) WithRequestID(id int64) *ClassifierFailure {
	e.RequestID = id
	return e
}

func (e *ClassifierFailure) Error() string {
	parts := []string{fmt.Sprintf("exit=%d", e.ExitCode)}
	if e.RequestID != 0 {
		parts = append([]string{fmt.Sprintf("request=%d", e.RequestID)}, parts...)
	}
	return format("classifier failure", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ClassifierFailure) Is(target error) bool {
	if _, ok := target.(*ClassifierFailure); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InfrastructureFailure wraps checkout, database and network failures. These
// are retryable: the request is left pending rather than declined.
type InfrastructureFailure struct {
	baseError
	RequestID int64
	Operation string
}

// NewInfrastructureFailure creates a new InfrastructureFailure.
func NewInfrastructureFailure(operation string, cause error) *InfrastructureFailure {
	return &InfrastructureFailure{
		baseError: baseError{
			message:   operation + " failed",
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		Operation: operation,
	}
}

// WithRequestID adds the request id to the error context.
func (e *InfrastructureFailure) WithRequestID(id int64) *InfrastructureFailure {
	e.RequestID = id
	return e
}

func (e *InfrastructureFailure) Error() string {
	var parts []string
	if e.RequestID != 0 {
		parts = append(parts, fmt.Sprintf("request=%d", e.RequestID))
	}
	return format("infrastructure failure", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *InfrastructureFailure) Is(target error) bool {
	if _, ok := target.(*InfrastructureFailure); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CapacityExhaustion reports a proposal group that no staging slot could take.
type CapacityExhaustion struct {
	baseError
	Group    string
	Requests int
}

// NewCapacityExhaustion creates a new CapacityExhaustion for a group.
func NewCapacityExhaustion(group string, requests int, reason string) *CapacityExhaustion {
	return &CapacityExhaustion{
		baseError: baseError{
			message:    reason,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Group:    group,
		Requests: requests,
	}
}

func (e *CapacityExhaustion) Error() string {
	parts := []string{fmt.Sprintf("group=%s", e.Group), fmt.Sprintf("requests=%d", e.Requests)}
	return format("capacity exhausted", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *CapacityExhaustion) Is(target error) bool {
	if _, ok := target.(*CapacityExhaustion); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LockContention is returned when the exclusivity session could not be
// acquired. The whole batch operation is aborted before any mutation.
type LockContention struct {
	baseError
	Key    string
	Holder string
	Waited time.Duration
}

// NewLockContention creates a new LockContention.
func NewLockContention(key string, waited time.Duration, cause error) *LockContention {
	return &LockContention{
		baseError: baseError{
			message:    "could not acquire exclusive session",
			cause:      cause,
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Key:    key,
		Waited: waited,
	}
}

// WithHolder records who currently owns the lock.
func (e *LockContention) WithHolder(holder string) *LockContention {
	e.Holder = holder
	return e
}

func (e *LockContention) Error() string {
	parts := []string{fmt.Sprintf("key=%s", e.Key)}
	if e.Holder != "" {
		parts = append(parts, fmt.Sprintf("holder=%s", e.Holder))
	}
	if e.Waited > 0 {
		parts = append(parts, fmt.Sprintf("waited=%s", e.Waited))
	}
	return format("lock contention", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *LockContention) Is(target error) bool {
	if _, ok := target.(*LockContention); ok {
		return true
	}
	return e.baseError.Is(target)
}

// PartialCommitFailure reports proposal groups that failed to commit. Groups
// listed in Committed stay applied; nothing is rolled back.
type PartialCommitFailure struct {
	Failed    map[string]error
	Committed []string
}

// NewPartialCommitFailure creates a new PartialCommitFailure.
func NewPartialCommitFailure(failed map[string]error, committed []string) *PartialCommitFailure {
	return &PartialCommitFailure{Failed: failed, Committed: committed}
}

func (e *PartialCommitFailure) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	total := len(e.Failed) + len(e.Committed)
	sb.WriteString(fmt.Sprintf("partial commit: %d of %d groups failed to commit", len(e.Failed), total))
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("\n  %s: %v", k, e.Failed[k]))
	}
	return sb.String()
}

// Unwrap exposes every per-group failure to errors.Is / errors.As.
func (e *PartialCommitFailure) Unwrap() []error {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, e.Failed[k])
	}
	return errs
}

// Is checks if this error matches the target.
func (e *PartialCommitFailure) Is(target error) bool {
	_, ok := target.(*PartialCommitFailure)
	return ok
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds an underlying cause.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
}

func (e *NotFoundError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// ValidationError represents invalid user input such as bad CLI arguments.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField adds the offending field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the offending value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	if e.Value != nil {
		return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return target == ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se StageError
	if As(err, &se) {
		return se.IsRetryable()
	}
	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var se StageError
	if As(err, &se) {
		return se.IsUserFacing()
	}
	var notFound *NotFoundError
	var validation *ValidationError
	var partial *PartialCommitFailure
	return As(err, &notFound) || As(err, &validation) || As(err, &partial)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement StageError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var se StageError
	if As(err, &se) {
		return se.Severity()
	}
	return SeverityError
}

// IsDecline returns true for errors that turn into a declined verdict.
func IsDecline(err error) bool {
	var pv *PolicyViolation
	var cf *ClassifierFailure
	return As(err, &pv) || As(err, &cf)
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
