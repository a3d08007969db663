package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// addDataCommands adds raw data fetch commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch fund data from the provider",
	}

	fetchCmd.AddCommand(newFetchCurrentCmd(app))
	fetchCmd.AddCommand(newFetchHistoryCmd(app))
	fetchCmd.AddCommand(newFetchInfoCmd(app))
	fetchCmd.AddCommand(newRefreshListCmd(app))

	rootCmd.AddCommand(fetchCmd)
}

func newFetchCurrentCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "current [code...]",
		Short: "Fetch current snapshots",
		Long:  "Fetch current price snapshots for the given fund codes, or for every enabled fund when no codes are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			codes := args
			if len(codes) == 0 {
				codes = app.Config.EnabledCodes()
			}
			if len(codes) == 0 {
				return fmt.Errorf("no fund codes given and none enabled in funds.yaml")
			}

			snapshots := app.Fetcher.BatchCurrent(context.Background(), codes)
			if output.IsJSON() {
				return output.JSON(snapshots)
			}

			table := NewTable(output, "CODE", "NAME", "PRICE", "CHANGE", "VOLUME")
			for _, code := range codes {
				snap, ok := snapshots[code]
				if !ok {
					table.AddRow(code, output.Yellow("no data"), "-", "-", "-")
					continue
				}
				table.AddRow(
					snap.Code,
					snap.Name,
					fmt.Sprintf("%.3f", snap.CurrentPrice),
					output.FormatPercent(snap.ChangePercent),
					fmt.Sprintf("%d", snap.Volume),
				)
			}
			table.Render()
			output.Dim("%d of %d funds resolved", len(snapshots), len(codes))
			return nil
		},
	}
}

func newFetchHistoryCmd(app *App) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "history <code>",
		Short: "Fetch historical bars for one fund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			series, err := app.Fetcher.Historical(context.Background(), args[0], period)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(series)
			}

			table := NewTable(output, "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
			for _, b := range series.Bars {
				table.AddRow(
					b.Date.Format("2006-01-02"),
					fmt.Sprintf("%.3f", b.Open),
					fmt.Sprintf("%.3f", b.High),
					fmt.Sprintf("%.3f", b.Low),
					fmt.Sprintf("%.3f", b.Close),
					fmt.Sprintf("%d", b.Volume),
				)
			}
			table.Render()
			output.Dim("%d bars, %s to %s", len(series.Bars),
				series.StartDate.Format("2006-01-02"), series.EndDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "60d", "history period (e.g. 30d, 60d, 1y)")
	return cmd
}

func newFetchInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info <code>",
		Short: "Fetch descriptive metadata for one fund",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			info, err := app.Fetcher.Info(context.Background(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(info)
			}
			output.Bold("%s  %s", info.Code, info.Name)
			output.Printf("  Currency:    %s\n", info.Currency)
			output.Printf("  Last update: %s\n", info.LastUpdate.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func newRefreshListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-list",
		Short: "Force a bulk instrument list refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if !app.Fetcher.RefreshInstrumentList(context.Background()) {
				return fmt.Errorf("instrument list refresh failed")
			}
			summary := app.Fetcher.Summarize(app.Config.EnabledCodes())
			if output.IsJSON() {
				return output.JSON(summary.BulkList)
			}
			output.Success("Instrument list refreshed: %d instruments", summary.BulkList.Size)
			return nil
		},
	}
}
