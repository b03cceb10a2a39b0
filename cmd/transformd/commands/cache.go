package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/config"
	"github.com/gridforge/transformd/pkg/replicacache"
)

// NewCacheCmd creates the cache command: a read-only summary of the
// persisted replica cache.
func NewCacheCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted replica cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load(ctx, *configFile)
			if err != nil {
				return errors.Errorf("loading config: %w", err)
			}

			// Inspection never talks to the catalog; it only reads the file.
			cache := replicacache.New(ctx, replicacache.Options{
				Path:     cfg.CacheFile,
				Validity: time.Duration(cfg.CacheValidity),
			})

			stats := cache.Stats()
			if len(stats) == 0 {
				fmt.Println(color.YellowString("replica cache is empty (%s)", cfg.CacheFile))
				return nil
			}

			validity := time.Duration(cfg.CacheValidity)
			rows := pterm.TableData{{"Transformation", "Snapshots", "Files", "Oldest", "Newest"}}
			for _, st := range stats {
				oldest := st.Oldest.Format(time.RFC3339)
				if time.Since(st.Oldest) > validity {
					oldest = color.RedString(oldest)
				}
				rows = append(rows, []string{
					strconv.FormatInt(st.TransformationID, 10),
					strconv.Itoa(st.Snapshots),
					strconv.Itoa(st.Files),
					oldest,
					st.Newest.Format(time.RFC3339),
				})
			}

			if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
				return errors.Errorf("rendering cache table: %w", err)
			}
			return nil
		},
	}
}
