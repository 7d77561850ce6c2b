package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/credcache/internal/cache"
	"github.com/systmms/credcache/internal/config"
)

// CacheStatus is the status command's report.
type CacheStatus struct {
	CacheFile   string        `json:"cache_file"`
	KeyLocation string        `json:"key_location"`
	TTLSeconds  int           `json:"ttl_seconds"`
	State       string        `json:"state"` // absent, fresh, stale, corrupt
	WrittenAt   *time.Time    `json:"written_at,omitempty"`
	Entries     []EntryStatus `json:"entries"`
}

// EntryStatus describes one cached entry. Values are never included.
type EntryStatus struct {
	Service   string    `json:"service"`
	Fields    []string  `json:"fields"`
	Missing   []string  `json:"missing,omitempty"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Fresh     bool      `json:"fresh"`
}

func NewStatusCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the credential cache holds",
		Long: `Show the cache file, key location and the cached entries with their
expiry. Credential values are never shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			c, err := openCache(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := collectStatus(c)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			return displayStatus(cmd.OutOrStdout(), status)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func collectStatus(c *cache.Cache) (CacheStatus, error) {
	status := CacheStatus{
		CacheFile:   c.Path(),
		KeyLocation: c.KeyLocation(),
		TTLSeconds:  int(c.TTL() / time.Second),
		State:       "absent",
		Entries:     []EntryStatus{},
	}

	info, err := os.Stat(c.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return status, nil
		}
		return status, fmt.Errorf("failed to stat cache file: %w", err)
	}
	written := info.ModTime()
	status.WrittenAt = &written

	entries, err := c.Entries()
	if err != nil {
		if errors.Is(err, cache.ErrCorrupt) {
			status.State = "corrupt"
			return status, nil
		}
		return status, err
	}

	if c.IsFresh() {
		status.State = "fresh"
	} else {
		status.State = "stale"
	}

	for _, e := range entries {
		status.Entries = append(status.Entries, EntryStatus{
			Service:   e.Service,
			Fields:    e.Fields,
			Missing:   e.Missing,
			StoredAt:  e.StoredAt,
			ExpiresAt: e.ExpiresAt,
			Fresh:     e.Fresh,
		})
	}
	return status, nil
}

func displayStatus(out io.Writer, status CacheStatus) error {
	_, _ = fmt.Fprintf(out, "Cache file:  %s (%s)\n", status.CacheFile, status.State)
	_, _ = fmt.Fprintf(out, "Key:         %s\n", status.KeyLocation)
	_, _ = fmt.Fprintf(out, "TTL:         %s\n", time.Duration(status.TTLSeconds)*time.Second)
	if status.WrittenAt != nil {
		_, _ = fmt.Fprintf(out, "Written:     %s\n", status.WrittenAt.Format(time.RFC3339))
	}

	if len(status.Entries) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo cached entries.")
		return nil
	}

	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "SERVICE\tFIELDS\tMISSING\tEXPIRES\tSTATUS\n")
	_, _ = fmt.Fprintf(w, "-------\t------\t-------\t-------\t------\n")
	for _, e := range status.Entries {
		state := "✓ fresh"
		if !e.Fresh {
			state = "✗ expired"
		}
		missing := "-"
		if len(e.Missing) > 0 {
			missing = strings.Join(e.Missing, ",")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Service, strings.Join(e.Fields, ","), missing, e.ExpiresAt.Format(time.RFC3339), state)
	}
	return w.Flush()
}
