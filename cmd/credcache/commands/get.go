package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/credcache/internal/config"
	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/pkg/provider"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		envFormat  bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "get <service> <field>...",
		Short: "Get credential fields of a service",
		Long: `Retrieve credential fields of a 1Password item, using the encrypted
local cache when it is fresh.

With a single field only the raw value is printed, making it suitable for
scripting. With several fields each is printed as field=value. Fields that
could not be fetched are reported on stderr and left out.

Examples:
  # Get a single value
  credcache get GitHub token

  # Get several fields as JSON (failed fields are null)
  credcache get Spotify client_id client_secret uri --json

  # Export into the current shell
  eval "$(credcache get Spotify client_id client_secret --env-format)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && envFormat {
				return dserrors.UserError{
					Message:    "--json and --env-format cannot be combined",
					Suggestion: "Pick one output format",
				}
			}

			if err := cfg.Load(); err != nil {
				return err
			}

			mgr, c, err := newManager(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			service, fields := args[0], args[1:]
			creds, err := mgr.GetCredentials(cmd.Context(), service, fields...)
			if err != nil {
				return dserrors.UserError{
					Message:    "Cannot use the credential cache",
					Details:    err.Error(),
					Suggestion: "Check permissions of the encryption key location, or set key_file / key_backend",
					Err:        err,
				}
			}

			missing := creds.Missing()
			for _, field := range missing {
				cfg.Logger.Warn("No value for %s/%s", service, field)
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOutput:
				err = writeJSON(out, creds)
			case envFormat:
				err = writeEnv(out, service, creds)
			case len(fields) == 1:
				if v, ok := creds.Get(fields[0]); ok {
					_, err = fmt.Fprint(out, v)
				}
			default:
				err = writePairs(out, creds)
			}
			if err != nil {
				return err
			}

			if strict && len(missing) > 0 {
				return dserrors.UserError{
					Message:    fmt.Sprintf("%d field(s) of %s could not be fetched: %s", len(missing), service, strings.Join(missing, ", ")),
					Suggestion: "Run 'credcache doctor' to check the 1Password CLI session",
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as a JSON object")
	cmd.Flags().BoolVar(&envFormat, "env-format", false, "Output as shell export statements")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero if any field could not be fetched")

	return cmd
}

func writeJSON(w io.Writer, creds provider.CredentialMap) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(creds)
}

func writePairs(w io.Writer, creds provider.CredentialMap) error {
	for _, field := range creds.Fields() {
		v, ok := creds.Get(field)
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s=%s\n", field, v); err != nil {
			return err
		}
	}
	return nil
}

func writeEnv(w io.Writer, service string, creds provider.CredentialMap) error {
	names := make([]string, 0, len(creds))
	values := make(map[string]string, len(creds))
	for _, field := range creds.Fields() {
		v, ok := creds.Get(field)
		if !ok {
			continue
		}
		name := envName(service, field)
		names = append(names, name)
		values[name] = v
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, "export %s=%s\n", name, shellQuote(values[name])); err != nil {
			return err
		}
	}
	return nil
}

// envName turns ("My-Service", "client id") into MY_SERVICE_CLIENT_ID.
func envName(service, field string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(service + "_" + field) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
