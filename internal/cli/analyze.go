package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/decision"
	"etf-tracker/internal/models"
	"etf-tracker/internal/store"
)

// addAnalysisCommands adds analysis, recommendation, and history commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
	rootCmd.AddCommand(newReportCmd(app))
}

func newAnalyzeCmd(app *App) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "analyze [code...]",
		Short: "Analyze funds and derive recommendations",
		Long:  "Run technical analysis and the decision engine over the given fund codes, or every enabled fund when no codes are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			codes := args
			if len(codes) == 0 {
				codes = app.Config.EnabledCodes()
			}
			if len(codes) == 0 {
				return fmt.Errorf("no fund codes given and none enabled in funds.yaml")
			}

			ctx := context.Background()
			results, decisions, err := analyzeFunds(ctx, app, codes)
			if err != nil {
				return err
			}

			if save && app.History != nil {
				for code := range results {
					if err := app.History.SaveAnalysis(ctx, results[code]); err != nil {
						app.Logger.Warn().Err(err).Str("symbol", code).Msg("Failed to persist analysis result")
					}
					if err := app.History.SaveDecision(ctx, decisions[code]); err != nil {
						app.Logger.Warn().Err(err).Str("symbol", code).Msg("Failed to persist decision")
					}
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"analyses":  results,
					"decisions": decisions,
					"summary":   decision.Summarize(decisions),
				})
			}
			renderDecisions(output, codes, results, decisions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", true, "persist results to the history store")
	return cmd
}

// analyzeFunds fetches snapshots and series, then runs the analyzer and
// decision engine over every fund that resolved.
func analyzeFunds(ctx context.Context, app *App, codes []string) (map[string]analysis.Result, map[string]decision.Decision, error) {
	snapshots := app.Fetcher.BatchCurrent(ctx, codes)
	if len(snapshots) == 0 {
		return nil, nil, fmt.Errorf("no snapshots resolved for %d funds", len(codes))
	}
	series := app.Fetcher.BatchHistorical(ctx, codes, app.Config.Analysis.Period, app.Config.Provider.FallbackWorkers)

	results := make(map[string]analysis.Result, len(snapshots))
	for code, snap := range snapshots {
		var s *models.Series
		if ser, ok := series[code]; ok {
			s = &ser
		}
		results[code] = app.Analyzer.Analyze(snap, s)
	}
	return results, app.Engine.BatchDecide(results), nil
}

func renderDecisions(output *Output, codes []string, results map[string]analysis.Result, decisions map[string]decision.Decision) {
	table := NewTable(output, "CODE", "NAME", "PRICE", "CHANGE", "RSI", "TREND", "SCORE", "ACTION")

	ordered := make([]string, 0, len(decisions))
	for code := range decisions {
		ordered = append(ordered, code)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return decisions[ordered[i]].Score > decisions[ordered[j]].Score
	})

	for _, code := range ordered {
		r := results[code]
		d := decisions[code]
		table.AddRow(
			r.Code,
			r.Name,
			fmt.Sprintf("%.3f", r.CurrentPrice),
			output.FormatPercent(r.ChangePercent),
			fmt.Sprintf("%.1f", r.RSI),
			r.Trend,
			fmt.Sprintf("%.0f", r.Score),
			output.Action(d.Action),
		)
	}
	table.Render()

	for _, code := range ordered {
		d := decisions[code]
		if d.Action == decision.ActionHold {
			continue
		}
		output.Println()
		output.Bold("%s %s (confidence %.0f%%)", d.Code, string(d.Action), d.Confidence*100)
		for _, reason := range d.Reasons {
			output.Printf("  - %s\n", reason)
		}
		if d.TargetPrice > 0 {
			output.Printf("  target %.2f, stop %.2f\n", d.TargetPrice, d.StopLoss)
		}
	}

	summary := decision.Summarize(decisions)
	output.Println()
	output.Dim("%d funds analyzed, avg score %.0f, %d buy / %d sell signals",
		summary.Total, summary.AvgScore, len(summary.TopBuys), len(summary.TopSells))
}

func newHistoryCmd(app *App) *cobra.Command {
	var limit int
	var code string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent decision history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.History == nil {
				return fmt.Errorf("history store unavailable")
			}

			decisions, err := app.History.GetDecisions(context.Background(), store.DecisionFilter{
				Code:  code,
				Limit: limit,
			})
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(decisions)
			}

			table := NewTable(output, "DATE", "CODE", "ACTION", "CONFIDENCE", "SCORE", "PRICE")
			for _, d := range decisions {
				table.AddRow(
					d.GeneratedAt.Format("2006-01-02 15:04"),
					d.Code,
					output.Action(d.Action),
					fmt.Sprintf("%.0f%%", d.Confidence*100),
					fmt.Sprintf("%.0f", d.Score),
					fmt.Sprintf("%.3f", d.CurrentPrice),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	cmd.Flags().StringVar(&code, "code", "", "filter by fund code")
	return cmd
}

func newReportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Generate a summary report now",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			codes := app.Config.EnabledCodes()
			if len(codes) == 0 {
				return fmt.Errorf("no funds enabled in funds.yaml")
			}

			results, decisions, err := analyzeFunds(context.Background(), app, codes)
			if err != nil {
				return err
			}

			stats := app.Cache.Stats()
			path, err := app.Reporter.Write(decisions, results, &stats)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Report written to %s", path)
			return nil
		},
	}
}
