package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertNoSecretLeak verifies that none of the secrets appear in output.
//
//	AssertNoSecretLeak(t, logger.GetOutput(), []string{"abc", "xyz"})
func AssertNoSecretLeak(t *testing.T, output string, secrets []string) {
	t.Helper()

	for _, secret := range secrets {
		assert.NotContains(t, output, secret,
			"Secret %q should not appear in output", secret)
	}
}

// AssertFileNotContains verifies that a file exists and none of the
// substrings appear in its raw bytes.
func AssertFileNotContains(t *testing.T, path string, substrings []string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "Failed to read file %s", path)

	for _, s := range substrings {
		assert.NotContains(t, string(data), s, "File %s should not contain %q", path, s)
	}
}

// AssertErrorContains verifies that err is non-nil and mentions substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	if assert.Error(t, err, "Expected an error containing %q", substr) {
		assert.Contains(t, err.Error(), substr)
	}
}
