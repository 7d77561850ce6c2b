package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/credcache/internal/config"
	dserrors "github.com/systmms/credcache/internal/errors"
)

func NewClearCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the credential cache file",
		Long: `Delete the encrypted cache file so the next request fetches fresh values
from the source. The encryption key is kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}

			path := cfg.Settings.CacheFile
			if err := os.Remove(path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					cfg.Logger.Info("No cache file at %s", path)
					return nil
				}
				return dserrors.UserError{
					Message:    fmt.Sprintf("Failed to delete cache file %s", path),
					Details:    err.Error(),
					Suggestion: "Check file permissions and path",
					Err:        err,
				}
			}

			cfg.Logger.Info("Removed %s", path)
			return nil
		},
	}

	return cmd
}
