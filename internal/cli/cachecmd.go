package cli

import (
	"github.com/spf13/cobra"
)

// addCacheCommands adds cache inspection and maintenance commands.
func addCacheCommands(rootCmd *cobra.Command, app *App) {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache inspection and maintenance",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			stats := app.Cache.Stats()
			if output.IsJSON() {
				return output.JSON(stats)
			}
			output.Bold("Cache usage")
			output.Printf("  Directory:  %s\n", stats.Dir)
			output.Printf("  Total size: %.2f MB of %.2f MB budget, %d files\n",
				float64(stats.TotalBytes)/(1024*1024), float64(stats.MaxSizeBytes)/(1024*1024), stats.TotalFiles)
			for ns, n := range stats.FileCounts {
				output.Printf("  %-12s %d entries, %.2f MB\n", string(ns), n,
					float64(stats.SizesBytes[ns])/(1024*1024))
			}
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Drop expired entries and enforce the size budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			removed := app.Cache.InvalidateExpired()
			if err := app.Cache.EnforceSizeBudget(true); err != nil {
				return err
			}
			total := 0
			for _, n := range removed {
				total += n
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"expired_removed": removed})
			}
			output.Success("Removed %d expired entries, size budget enforced", total)
			return nil
		},
	})

	rootCmd.AddCommand(cacheCmd)
}
