package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/cache"
	"etf-tracker/internal/config"
	"etf-tracker/internal/decision"
	"etf-tracker/internal/fetcher"
	"etf-tracker/internal/models"
	"etf-tracker/internal/report"
	"etf-tracker/internal/store"
)

// Deps bundles the collaborators the built-in task handlers close over.
// History may be nil; persistence is then skipped.
type Deps struct {
	Cfg      *config.Config
	Fetcher  *fetcher.Fetcher
	Cache    *cache.Cache
	Analyzer *analysis.Analyzer
	Engine   *decision.Engine
	Reporter *report.Writer
	History  store.HistoryStore
	Log      zerolog.Logger
}

// SetupDefaultTasks registers the standing task set. First runs are
// staggered so startup does not fire everything at once.
func SetupDefaultTasks(s *Scheduler, d Deps) error {
	now := time.Now()
	sc := d.Cfg.Scheduler

	type entry struct {
		enabled bool
		task    *Task
	}
	entries := []entry{
		{true, &Task{
			ID:       "bulk_refresh",
			Kind:     KindBulkRefresh,
			Name:     "instrument list refresh",
			Interval: sc.BulkRefreshInterval,
			NextRun:  now.Add(30 * time.Minute),
			Run:      d.runBulkRefresh,
		}},
		{sc.DataUpdateEnabled, &Task{
			ID:       "data_update",
			Kind:     KindDataUpdate,
			Name:     "fund data update",
			Interval: sc.DataUpdateInterval,
			NextRun:  now.Add(1 * time.Minute),
			Run:      d.runDataUpdate,
		}},
		{sc.AnalysisEnabled, &Task{
			ID:       "analysis",
			Kind:     KindAnalysis,
			Name:     "technical analysis",
			Interval: sc.AnalysisInterval,
			NextRun:  now.Add(5 * time.Minute),
			Run:      d.runAnalysis,
		}},
		{sc.ReportEnabled, &Task{
			ID:       "weekly_report",
			Kind:     KindReport,
			Name:     "summary report",
			Interval: sc.ReportInterval,
			NextRun:  now.Add(10 * time.Minute),
			Run:      d.runReport,
		}},
		{sc.CleanupEnabled, &Task{
			ID:       "cache_cleanup",
			Kind:     KindCleanup,
			Name:     "cache maintenance",
			Interval: sc.CleanupInterval,
			NextRun:  now.Add(1 * time.Hour),
			Run:      d.runCleanup,
		}},
	}

	for _, e := range entries {
		if !e.enabled {
			continue
		}
		if err := s.Register(e.task); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) runBulkRefresh(ctx context.Context) error {
	if !d.Fetcher.RefreshInstrumentList(ctx) {
		return fmt.Errorf("instrument list refresh failed")
	}
	return nil
}

// runDataUpdate refreshes snapshots for every enabled fund and warms the
// historical cache for priority funds.
func (d Deps) runDataUpdate(ctx context.Context) error {
	codes := d.Cfg.EnabledCodes()
	if len(codes) == 0 {
		return nil
	}

	snapshots := d.Fetcher.BatchCurrent(ctx, codes)
	for _, snap := range snapshots {
		if err := d.Cache.PutSnapshot(snap); err != nil {
			d.Log.Warn().Err(err).Str("symbol", snap.Code).Msg("Failed to persist snapshot")
		}
	}

	priority := d.Cfg.PriorityCodes()
	if len(priority) > 0 {
		d.Fetcher.BatchHistorical(ctx, priority, d.Cfg.Analysis.Period, d.Cfg.Provider.FallbackWorkers)
	}

	if len(snapshots) == 0 {
		return fmt.Errorf("no snapshots resolved for %d funds", len(codes))
	}
	d.Log.Info().Int("resolved", len(snapshots)).Int("requested", len(codes)).
		Msg("Data update complete")
	return nil
}

// runAnalysis analyzes every enabled fund, derives decisions, and persists
// both to the history store.
func (d Deps) runAnalysis(ctx context.Context) error {
	results, err := d.analyzeAll(ctx)
	if err != nil {
		return err
	}

	decisions := d.Engine.BatchDecide(results)
	if d.History != nil {
		for code := range results {
			if err := d.History.SaveAnalysis(ctx, results[code]); err != nil {
				d.Log.Warn().Err(err).Str("symbol", code).Msg("Failed to persist analysis result")
			}
			if err := d.History.SaveDecision(ctx, decisions[code]); err != nil {
				d.Log.Warn().Err(err).Str("symbol", code).Msg("Failed to persist decision")
			}
		}
	}

	summary := decision.Summarize(decisions)
	d.Log.Info().
		Int("funds", summary.Total).
		Int("buys", len(summary.TopBuys)).
		Int("sells", len(summary.TopSells)).
		Msg("Analysis run complete")
	return nil
}

func (d Deps) analyzeAll(ctx context.Context) (map[string]analysis.Result, error) {
	codes := d.Cfg.EnabledCodes()
	if len(codes) == 0 {
		return map[string]analysis.Result{}, nil
	}

	snapshots := d.Fetcher.BatchCurrent(ctx, codes)
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no snapshots available for analysis")
	}
	series := d.Fetcher.BatchHistorical(ctx, codes, d.Cfg.Analysis.Period, d.Cfg.Provider.FallbackWorkers)

	results := make(map[string]analysis.Result, len(snapshots))
	for code, snap := range snapshots {
		var s *models.Series
		if ser, ok := series[code]; ok {
			s = &ser
		}
		results[code] = d.Analyzer.Analyze(snap, s)
	}
	return results, nil
}

// runReport writes a summary report built from a fresh analysis pass.
func (d Deps) runReport(ctx context.Context) error {
	results, err := d.analyzeAll(ctx)
	if err != nil {
		return err
	}
	decisions := d.Engine.BatchDecide(results)

	stats := d.Cache.Stats()
	path, err := d.Reporter.Write(decisions, results, &stats)
	if err != nil {
		return err
	}
	d.Log.Info().Str("path", path).Msg("Report generated")
	return nil
}

// runCleanup drops expired cache entries and enforces the size budget.
func (d Deps) runCleanup(ctx context.Context) error {
	removed := d.Cache.InvalidateExpired()
	total := 0
	for _, n := range removed {
		total += n
	}
	if err := d.Cache.EnforceSizeBudget(false); err != nil {
		return err
	}
	d.Log.Info().Int("expired_removed", total).Msg("Cache cleanup complete")
	return nil
}

// OptimizationStatus combines scheduler and fetcher state for the status
// command.
type OptimizationStatus struct {
	SchedulerRunning bool            `json:"scheduler_running"`
	Tasks            StatusSummary   `json:"tasks"`
	Fetch            fetcher.Summary `json:"fetch"`
	CacheStats       cache.Stats     `json:"cache_stats"`
}

// Optimization reports the data-path health for the configured universe.
func (d Deps) Optimization(s *Scheduler) OptimizationStatus {
	return OptimizationStatus{
		SchedulerRunning: s.Running(),
		Tasks:            s.Status(),
		Fetch:            d.Fetcher.Summarize(d.Cfg.EnabledCodes()),
		CacheStats:       d.Cache.Stats(),
	}
}
