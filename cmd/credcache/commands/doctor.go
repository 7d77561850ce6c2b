package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credcache/internal/cache"
	"github.com/systmms/credcache/internal/config"
	dserrors "github.com/systmms/credcache/internal/errors"
	"github.com/systmms/credcache/pkg/provider"
)

// doctorTimeout bounds the source readiness check.
const doctorTimeout = 30 * time.Second

// CheckResult is one line of the doctor report.
type CheckResult struct {
	Name       string
	Status     string // ok, warn, error
	Message    string
	Suggestion string
}

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, encryption key, cache and source",
		Long: `Verify that credcache is ready to serve credentials.

This command checks:
- Configuration file validity
- Encryption key availability
- Cache file readability
- Credential source readiness (for 1Password: 'op' installed and signed in)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			results := []CheckResult{checkConfig(cfg)}
			if results[0].Status == "error" {
				displayChecks(out, results, verbose)
				return fmt.Errorf("configuration is invalid")
			}

			c, err := openCache(cfg)
			if err != nil {
				results = append(results, failed("encryption key", err))
			} else {
				defer c.Close()
				results = append(results, checkKey(c), checkCache(c))
			}

			results = append(results, checkSource(cmd.Context(), cfg))

			displayChecks(out, results, verbose)

			passed := 0
			for _, r := range results {
				if r.Status != "error" {
					passed++
				}
			}
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d checks passed\n", passed, len(results))
			if passed < len(results) {
				return fmt.Errorf("some checks failed")
			}

			cfg.Logger.Info("All systems operational!")
			return nil
		},
	}

	cmd.Flags().BoolVar(&verbose, "verbose", false, "Show suggestions for failed checks")

	return cmd
}

func checkConfig(cfg *config.Config) CheckResult {
	if err := cfg.Load(); err != nil {
		return failed("configuration", err)
	}
	return CheckResult{
		Name:    "configuration",
		Status:  "ok",
		Message: fmt.Sprintf("source %s, ttl %s", cfg.Settings.Source, cfg.Settings.TTL()),
	}
}

func checkKey(c *cache.Cache) CheckResult {
	if err := c.EnsureKey(); err != nil {
		return failed("encryption key", err)
	}
	return CheckResult{Name: "encryption key", Status: "ok", Message: c.KeyLocation()}
}

func checkCache(c *cache.Cache) CheckResult {
	entries, err := c.Entries()
	switch {
	case errors.Is(err, cache.ErrCorrupt):
		return CheckResult{
			Name:       "cache file",
			Status:     "warn",
			Message:    "unreadable, will be replaced on next fetch",
			Suggestion: "Run 'credcache clear' to remove it now",
		}
	case err != nil:
		return failed("cache file", err)
	case entries == nil:
		return CheckResult{Name: "cache file", Status: "ok", Message: "not created yet"}
	}

	fresh := 0
	for _, e := range entries {
		if e.Fresh {
			fresh++
		}
	}
	return CheckResult{
		Name:    "cache file",
		Status:  "ok",
		Message: fmt.Sprintf("%d entries, %d fresh", len(entries), fresh),
	}
}

func checkSource(ctx context.Context, cfg *config.Config) CheckResult {
	name := "source " + cfg.Settings.Source

	src, err := newSource(cfg)
	if err != nil {
		return failed(name, err)
	}

	v, ok := src.(provider.Validator)
	if !ok {
		return CheckResult{Name: name, Status: "ok", Message: "no readiness check needed"}
	}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if err := v.Validate(ctx); err != nil {
		return failed(name, err)
	}
	return CheckResult{Name: name, Status: "ok", Message: "ready"}
}

func failed(name string, err error) CheckResult {
	r := CheckResult{Name: name, Status: "error", Message: err.Error()}

	var userErr dserrors.UserError
	var cfgErr dserrors.ConfigError
	var cmdErr dserrors.CommandError
	switch {
	case errors.As(err, &userErr):
		r.Message = userErr.Message
		r.Suggestion = userErr.Suggestion
	case errors.As(err, &cmdErr):
		r.Message = cmdErr.Message
		r.Suggestion = cmdErr.Suggestion
	case errors.As(err, &cfgErr):
		r.Suggestion = cfgErr.Suggestion
	}
	return r
}

func displayChecks(out io.Writer, results []CheckResult, verbose bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")
	for _, r := range results {
		status := r.Status
		switch r.Status {
		case "ok":
			status = "✓ " + status
		case "warn":
			status = "⚠ " + status
		case "error":
			status = "✗ " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, status, r.Message)
	}
	_ = w.Flush()

	if !verbose {
		return
	}
	for _, r := range results {
		if r.Status != "ok" && r.Suggestion != "" {
			_, _ = fmt.Fprintf(out, "\n%s: %s\n", r.Name, r.Suggestion)
		}
	}
}
