package objects

import (
	"errors"
	"fmt"
	"strings"
)

// UserError is an invalid submission: bad document, missing argument,
// unresolvable template or cyclic job graph. It is never retried.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error { return e.Err }

func NewUserError(format string, args ...interface{}) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// TemplateError is raised by the template engine for any reference that has
// no resolver or resolves to nothing.
type TemplateError struct {
	Path   string
	Reason string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error at '%s': %s", e.Path, e.Reason)
}

// TaskPreparationError marks a task failed before it reaches an executor.
type TaskPreparationError struct {
	TaskID string
	Err    error
}

func (e *TaskPreparationError) Error() string {
	return fmt.Sprintf("failed to prepare task %s: %s", e.TaskID, e.Err)
}

func (e *TaskPreparationError) Unwrap() error { return e.Err }

// ExecutorTransientError is retried with backoff by the driver.
type ExecutorTransientError struct {
	Op  string
	Err error
}

func (e *ExecutorTransientError) Error() string {
	return fmt.Sprintf("transient executor error during %s: %s", e.Op, e.Err)
}

func (e *ExecutorTransientError) Unwrap() error { return e.Err }

type ExecutorPermanentError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ExecutorPermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("executor error during %s: %s: %s", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("executor error during %s: %s", e.Op, e.Reason)
}

func (e *ExecutorPermanentError) Unwrap() error { return e.Err }

type WorkflowFailedError struct {
	Message string
	Cycle   []string
}

func (e *WorkflowFailedError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Cycle, " -> "))
	}
	return e.Message
}

func Transient(op string, err error) error {
	return &ExecutorTransientError{Op: op, Err: err}
}

func Permanent(op, reason string, err error) error {
	return &ExecutorPermanentError{Op: op, Reason: reason, Err: err}
}

func IsUserError(err error) bool {
	var userErr *UserError
	var tmplErr *TemplateError
	return errors.As(err, &userErr) || errors.As(err, &tmplErr)
}

func IsTransient(err error) bool {
	var transient *ExecutorTransientError
	return errors.As(err, &transient)
}

func IsPermanent(err error) bool {
	var permanent *ExecutorPermanentError
	return errors.As(err, &permanent)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var ErrNotFound = errors.New("record not found")
