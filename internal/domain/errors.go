package domain

import (
	"errors"
	"fmt"
)

// OfflineError rejects a write attempted while the remote store is unreachable.
// It is raised before any remote call.
type OfflineError struct {
	Op string
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("%s needs a connection: you are offline", e.Op)
}

// ValidationError reports an empty or malformed required field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// RemoteError wraps a failure of the storage or identity collaborator.
// Error returns a generic message; the cause is available through Unwrap for logs.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("could not %s, please try again", e.Op)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an absent block or booking. Lifecycle callers treat it as a no-op.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func Offline(op string) error {
	return &OfflineError{Op: op}
}

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func Remote(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

func NotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

func IsOffline(err error) bool {
	var e *OfflineError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsRemote(err error) bool {
	var e *RemoteError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
