// Package testutil provides testing utilities for credcache.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/systmms/credcache/pkg/exec"
)

// MockCommandExecutor is a configurable exec.CommandExecutor for testing
// CLI-backed sources without the real binary.
type MockCommandExecutor struct {
	mu sync.Mutex

	// Responses maps "command arg1 arg2" to a canned response. A key also
	// matches any invocation it is a prefix of; the longest match wins.
	Responses map[string]MockResponse

	// DefaultResponse is used when no pattern matches.
	DefaultResponse *MockResponse

	// RecordedCalls stores every Execute call for verification.
	RecordedCalls []RecordedCall

	// StrictMode fails Execute when no response matches.
	StrictMode bool

	// Block makes Execute wait for the context to be done before answering.
	Block bool
}

// MockResponse defines the output of a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// RecordedCall stores one command execution.
type RecordedCall struct {
	Command string
	Args    []string
}

// Line returns the call as a single space-separated command line.
func (c RecordedCall) Line() string {
	return commandLine(c.Command, c.Args)
}

// NewMockCommandExecutor creates a mock executor with no responses.
func NewMockCommandExecutor() *MockCommandExecutor {
	return &MockCommandExecutor{
		Responses: make(map[string]MockResponse),
	}
}

// Execute returns the mocked response for the command.
func (m *MockCommandExecutor) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.mu.Lock()
	m.RecordedCalls = append(m.RecordedCalls, RecordedCall{
		Command: name,
		Args:    append([]string(nil), args...),
	})
	block := m.Block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	line := commandLine(name, args)
	if resp, ok := m.lookup(line); ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	if m.DefaultResponse != nil {
		return m.DefaultResponse.Stdout, m.DefaultResponse.Stderr, m.DefaultResponse.Err
	}
	if m.StrictMode {
		return nil, nil, fmt.Errorf("mock: no response configured for command: %s", line)
	}
	return []byte{}, []byte{}, nil
}

func (m *MockCommandExecutor) lookup(line string) (MockResponse, bool) {
	if resp, ok := m.Responses[line]; ok {
		return resp, true
	}

	best := ""
	for pattern := range m.Responses {
		if strings.HasPrefix(line, pattern) && len(pattern) > len(best) {
			best = pattern
		}
	}
	if best == "" {
		return MockResponse{}, false
	}
	return m.Responses[best], true
}

func commandLine(name string, args []string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}

// AddResponse registers a response for a command pattern.
func (m *MockCommandExecutor) AddResponse(commandPattern string, response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[commandPattern] = response
}

// AddOutput registers a successful response printing stdout.
func (m *MockCommandExecutor) AddOutput(commandPattern, stdout string) {
	m.AddResponse(commandPattern, MockResponse{Stdout: []byte(stdout)})
}

// AddErrorResponse registers a failing response with the given stderr.
func (m *MockCommandExecutor) AddErrorResponse(commandPattern string, stderr string, exitCode int) {
	m.AddResponse(commandPattern, MockResponse{
		Stderr: []byte(stderr),
		Err:    fmt.Errorf("exit status %d", exitCode),
	})
}

// GetCalls returns the recorded calls of the named command.
func (m *MockCommandExecutor) GetCalls(commandName string) []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []RecordedCall
	for _, call := range m.RecordedCalls {
		if call.Command == commandName {
			matches = append(matches, call)
		}
	}
	return matches
}

// CallCount returns the number of times Execute was called.
func (m *MockCommandExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RecordedCalls)
}

// Reset clears recorded calls and responses.
func (m *MockCommandExecutor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = make(map[string]MockResponse)
	m.RecordedCalls = nil
	m.DefaultResponse = nil
}

// AssertCallCount verifies the exact number of calls of a command.
func (m *MockCommandExecutor) AssertCallCount(t interface{ Error(args ...interface{}) }, commandName string, expected int) bool {
	calls := m.GetCalls(commandName)
	if len(calls) != expected {
		t.Error("expected command", commandName, "to be called", expected, "times, but was called", len(calls), "times")
		return false
	}
	return true
}

// AssertNotCalled verifies that a command was never run.
func (m *MockCommandExecutor) AssertNotCalled(t interface{ Error(args ...interface{}) }, commandName string) bool {
	return m.AssertCallCount(t, commandName, 0)
}

var _ exec.CommandExecutor = (*MockCommandExecutor)(nil)

// OnePasswordMockResponses provides canned responses of the op CLI.
type OnePasswordMockResponses struct{}

// AccountGet is the output of a signed-in `op account get`.
func (OnePasswordMockResponses) AccountGet() MockResponse {
	return MockResponse{
		Stdout: []byte(`ID:     ABCD123
URL:    my.1password.com
Email:  user@example.com
Type:   INDIVIDUAL
State:  ACTIVE
`),
	}
}

// Read is the output of `op read` for a field holding value.
func (OnePasswordMockResponses) Read(value string) MockResponse {
	return MockResponse{Stdout: []byte(value + "\n")}
}

// NotSignedIn is the failure when no session exists.
func (OnePasswordMockResponses) NotSignedIn() MockResponse {
	return MockResponse{
		Stderr: []byte("[ERROR] 2026/03/01 12:00:00 You are not currently signed in. Please run `op signin --help` for instructions\n"),
		Err:    fmt.Errorf("exit status 1"),
	}
}

// ItemNotFound is the failure for an unknown item.
func (OnePasswordMockResponses) ItemNotFound(service, vault string) MockResponse {
	return MockResponse{
		Stderr: []byte(fmt.Sprintf("[ERROR] 2026/03/01 12:00:00 could not read secret: %q isn't an item in the %q vault. Specify the item with its UUID, name, or domain.\n", service, vault)),
		Err:    fmt.Errorf("exit status 1"),
	}
}

// FieldNotFound is the failure for a field the item does not have.
func (OnePasswordMockResponses) FieldNotFound(service, field string) MockResponse {
	return MockResponse{
		Stderr: []byte(fmt.Sprintf("[ERROR] 2026/03/01 12:00:00 could not read secret: item '%s' does not have a field '%s'\n", service, field)),
		Err:    fmt.Errorf("exit status 1"),
	}
}
