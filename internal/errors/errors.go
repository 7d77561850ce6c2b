package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// KeyIOError means the cache encryption key could not be read or created.
// Without a key no cache read or write is possible, so it is always fatal.
type KeyIOError struct {
	Op       string // "read", "create", "decode"
	Location string // file path or keyring address
	Err      error
}

func (e *KeyIOError) Error() string {
	msg := fmt.Sprintf("encryption key %s failed at %s", e.Op, e.Location)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *KeyIOError) Unwrap() error {
	return e.Err
}

// IsKeyIO reports whether err is, or wraps, a *KeyIOError
func IsKeyIO(err error) bool {
	var keyErr *KeyIOError
	return errors.As(err, &keyErr)
}

// ProviderError enhances provider-specific errors with context
func ProviderError(provider string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s provider error during %s", provider, operation),
		Suggestion: getProviderSuggestion(provider, err),
		Err:        err,
	}
}

// ProviderSuggestion returns a remediation hint for a provider error, or ""
func ProviderSuggestion(provider string, err error) string {
	return getProviderSuggestion(provider, err)
}

// getProviderSuggestion returns helpful suggestions based on provider and error
func getProviderSuggestion(provider string, err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()

	switch provider {
	case "1password", "onepassword":
		if strings.Contains(errStr, "not signed in") || strings.Contains(errStr, "not currently signed in") {
			return "Run 'op signin' to authenticate with 1Password"
		}
		if strings.Contains(errStr, "session expired") {
			return "Your 1Password session has expired. Run 'op signin' again"
		}
		if strings.Contains(errStr, "isn't an item") || strings.Contains(errStr, "not found") {
			return "Verify the item exists. Use 'op item list --vault <vault>' to see available items"
		}
		if strings.Contains(errStr, "does not have a field") {
			return "Verify the field name. Use 'op item get <item> --vault <vault>' to list fields"
		}
		if strings.Contains(errStr, "executable file not found") || strings.Contains(errStr, "command not found") {
			return "Install 1Password CLI: https://developer.1password.com/docs/cli/get-started/"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection or raise fetch_timeout_ms"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and provider configuration"
	}

	return ""
}

// WrapCommandNotFound wraps command not found errors with helpful suggestions
func WrapCommandNotFound(command string, err error) error {
	suggestions := map[string]string{
		"op": "Install 1Password CLI: https://developer.1password.com/docs/cli/get-started/",
	}

	suggestion := suggestions[command]
	if suggestion == "" {
		suggestion = fmt.Sprintf("Make sure '%s' is installed and in your PATH", command)
	}

	msg := "command not found"
	if err != nil {
		msg += " (" + err.Error() + ")"
	}

	return CommandError{
		Command:    command,
		Message:    msg,
		Suggestion: suggestion,
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	switch err.(type) {
	case UserError, ConfigError, CommandError, *KeyIOError:
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
