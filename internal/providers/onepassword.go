package providers

import (
	"context"
	"fmt"
	"strings"

	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/pkg/exec"
	"github.com/systmms/credcache/pkg/provider"
)

const opBinary = "op"

// OnePasswordSource reads credential fields with the 1Password CLI.
//
// Each field is one `op read op://<vault>/<service>/<field>` invocation. The
// CLI's own session handles authentication; UseCache adds --cache so op can
// reuse its daemon-held item cache between calls.
type OnePasswordSource struct {
	Vault    string
	Account  string
	UseCache bool

	executor exec.CommandExecutor
}

// NewOnePasswordSource creates a source that runs the real op binary.
func NewOnePasswordSource(vault, account string, useCache bool) *OnePasswordSource {
	return NewOnePasswordSourceWithExecutor(vault, account, useCache, exec.DefaultExecutor())
}

// NewOnePasswordSourceWithExecutor creates a source with a custom command
// executor, for testing.
func NewOnePasswordSourceWithExecutor(vault, account string, useCache bool, executor exec.CommandExecutor) *OnePasswordSource {
	return &OnePasswordSource{
		Vault:    vault,
		Account:  account,
		UseCache: useCache,
		executor: executor,
	}
}

func (s *OnePasswordSource) Name() string {
	return "onepassword"
}

// Reference builds the secret reference op reads for service/field.
func (s *OnePasswordSource) Reference(service, field string) string {
	return fmt.Sprintf("op://%s/%s/%s", s.Vault, service, field)
}

func (s *OnePasswordSource) args(service, field string) []string {
	args := []string{"read", s.Reference(service, field)}
	if s.UseCache {
		args = append(args, "--cache")
	}
	if s.Account != "" {
		args = append(args, "--account", s.Account)
	}
	return args
}

// Fetch returns the field value with surrounding whitespace removed.
// Failures are *provider.FetchError and carry op's stderr.
func (s *OnePasswordSource) Fetch(ctx context.Context, service, field string) (string, error) {
	stdout, stderr, err := s.executor.Execute(ctx, opBinary, s.args(service, field)...)
	if err != nil {
		fetchErr := &provider.FetchError{
			Source:   s.Name(),
			Service:  service,
			Field:    field,
			Stderr:   cleanStderr(stderr, stdout),
			ExitCode: exec.ExitCode(err),
			Err:      err,
		}
		if exec.IsNotFound(err) {
			fetchErr.Err = dserrors.WrapCommandNotFound(opBinary, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			fetchErr.Err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", fetchErr
	}

	return strings.TrimSpace(string(stdout)), nil
}

// Validate checks that op is installed and has a signed-in session.
func (s *OnePasswordSource) Validate(ctx context.Context) error {
	if _, err := exec.LookPath(opBinary); err != nil {
		return dserrors.WrapCommandNotFound(opBinary, err)
	}

	args := []string{"account", "get"}
	if s.Account != "" {
		args = append(args, "--account", s.Account)
	}

	_, stderr, err := s.executor.Execute(ctx, opBinary, args...)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = err.Error()
		}
		return dserrors.CommandError{
			Command:    "op account get",
			ExitCode:   exec.ExitCode(err),
			Message:    "1Password CLI is not signed in: " + detail,
			Suggestion: "Run 'op signin' to authenticate with 1Password",
		}
	}
	return nil
}

// cleanStderr trims op's diagnostic output and removes anything that also
// appeared on stdout, which may hold a partial secret.
func cleanStderr(stderr, stdout []byte) string {
	msg := strings.TrimSpace(string(stderr))
	var partial []string
	if out := strings.TrimSpace(string(stdout)); out != "" {
		partial = append(partial, out)
	}
	return logging.Redact(msg, partial)
}

var (
	_ provider.CredentialSource = (*OnePasswordSource)(nil)
	_ provider.Validator        = (*OnePasswordSource)(nil)
)
