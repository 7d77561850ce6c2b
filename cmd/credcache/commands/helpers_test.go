package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credcache/internal/config"
	"github.com/systmms/credcache/internal/logging"
	"github.com/systmms/credcache/pkg/exec"
	"github.com/systmms/credcache/tests/testutil"
)

type testEnv struct {
	dir       string
	cacheFile string
	keyFile   string
	cfgPath   string
	logs      *bytes.Buffer
	cfg       *config.Config
}

// newTestEnv writes a credcache.yaml whose cache and key live in a temp dir.
// extra is appended to the generated YAML.
func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:       dir,
		cacheFile: filepath.Join(dir, "cache", "credentials_cache.json"),
		keyFile:   filepath.Join(dir, "keys", "encryption.key"),
		cfgPath:   filepath.Join(dir, "credcache.yaml"),
		logs:      &bytes.Buffer{},
	}
	env.writeConfig(t, extra)
	env.cfg = config.New(env.cfgPath, "", logging.NewWithWriter(env.logs, false, true))
	return env
}

func (e *testEnv) writeConfig(t *testing.T, extra string) {
	t.Helper()
	content := fmt.Sprintf("version: 1\ncache_file: %q\nkey_file: %q\n%s", e.cacheFile, e.keyFile, extra)
	require.NoError(t, os.WriteFile(e.cfgPath, []byte(content), 0o600))
}

const literalSpotify = `source: literal
literal:
  Spotify:
    client_id: abc123
    client_secret: "s3cr'et"
    uri: http://localhost:8888/callback
`

// run executes cmd with args and returns what it wrote to stdout.
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// useMockExecutor routes CLI-backed sources to mock for the rest of the test.
// Tests calling it must not run in parallel.
func useMockExecutor(t *testing.T, mock *testutil.MockCommandExecutor) {
	t.Helper()

	prev := newExecutor
	newExecutor = func() exec.CommandExecutor { return mock }
	t.Cleanup(func() { newExecutor = prev })
}

// stubLookPath makes every binary appear installed.
func stubLookPath(t *testing.T) {
	t.Helper()

	prev := exec.LookPath
	exec.LookPath = func(file string) (string, error) { return "/usr/local/bin/" + file, nil }
	t.Cleanup(func() { exec.LookPath = prev })
}
