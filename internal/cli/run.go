package cli

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"etf-tracker/internal/scheduler"
)

// stopTimeout bounds how long shutdown waits for an in-flight task.
const stopTimeout = 30 * time.Second

// addRunCommands adds the daemon and status commands.
func addRunCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
}

func (app *App) schedulerDeps() scheduler.Deps {
	return scheduler.Deps{
		Cfg:      app.Config,
		Fetcher:  app.Fetcher,
		Cache:    app.Cache,
		Analyzer: app.Analyzer,
		Engine:   app.Engine,
		Reporter: app.Reporter,
		History:  app.History,
		Log:      app.Logger,
	}
}

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the tracker daemon",
		Long:  "Start the scheduler with the standing task set and block until SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			sched := scheduler.New(app.Config.Scheduler.PollInterval, app.Logger)
			if err := scheduler.SetupDefaultTasks(sched, app.schedulerDeps()); err != nil {
				return err
			}
			sched.Start()

			output.Info("Tracker running, %d tasks scheduled. Press Ctrl+C to stop.", sched.Status().Total)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")

			if err := sched.Stop(stopTimeout); err != nil {
				app.Logger.Warn().Err(err).Msg("Scheduler did not stop cleanly")
			}
			if app.History != nil {
				if err := app.History.Close(); err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to close history store")
				}
			}
			output.Success("Stopped")
			return nil
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show data-path health for the configured universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			// A fresh scheduler carries the standing task set so the status
			// reflects what the daemon would run; it is never started here.
			sched := scheduler.New(app.Config.Scheduler.PollInterval, app.Logger)
			deps := app.schedulerDeps()
			if err := scheduler.SetupDefaultTasks(sched, deps); err != nil {
				return err
			}
			status := deps.Optimization(sched)

			if output.IsJSON() {
				return output.JSON(status)
			}

			output.Bold("Fund universe")
			output.Printf("  Tracked: %d (%d valid, %d invalid)\n",
				status.Fetch.TotalFunds, status.Fetch.ValidFunds, status.Fetch.InvalidFunds)
			for _, code := range status.Fetch.InvalidCodes {
				output.Warning("  invalid code: %s", code)
			}
			output.Println()

			output.Bold("Bulk instrument list")
			if status.Fetch.BulkList.Cached {
				state := "fresh"
				if status.Fetch.BulkList.Expired {
					state = "expired"
				}
				output.Printf("  %d instruments, %.1fh old (%s)\n",
					status.Fetch.BulkList.Size, status.Fetch.BulkList.AgeHours, state)
			} else {
				output.Printf("  not cached\n")
			}
			output.Println()

			output.Bold("Cache")
			output.Printf("  %.2f MB of %.2f MB, %d files\n",
				float64(status.CacheStats.TotalBytes)/(1024*1024),
				float64(status.CacheStats.MaxSizeBytes)/(1024*1024),
				status.CacheStats.TotalFiles)
			output.Println()

			output.Bold("Tasks")
			table := NewTable(output, "TASK", "KIND", "STATE", "NEXT RUN", "RUNS")
			for _, t := range status.Tasks.Tasks {
				table.AddRow(
					t.ID,
					string(t.Kind),
					string(t.State),
					t.NextRun.Format("2006-01-02 15:04:05"),
					strconv.Itoa(t.RunCount),
				)
			}
			table.Render()
			return nil
		},
	}
}
