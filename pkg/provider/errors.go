package provider

import (
	"fmt"
)

// FetchError reports that a source could not return one field.
// Stderr holds the backend's diagnostic output and never the secret value.
type FetchError struct {
	Source   string
	Service  string
	Field    string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: failed to fetch field '%s' of '%s'", e.Source, e.Field, e.Service)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates the item or field does not exist in the source.
type NotFoundError struct {
	Source  string
	Service string
	Field   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("field '%s' of '%s' not found in %s", e.Field, e.Service, e.Source)
}
