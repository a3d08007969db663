// Package fetcher obtains fund snapshots and historical series from the
// market-data provider, subject to rate limiting, bounded retries, and a
// bulk-then-per-symbol fallback strategy. Results are read from and written
// through the durable cache.
package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"etf-tracker/internal/cache"
	"etf-tracker/internal/errors"
	"etf-tracker/internal/logging"
	"etf-tracker/internal/models"
	"etf-tracker/internal/provider"
	"etf-tracker/pkg/utils"
)

// Config holds fetcher tuning. The chunk size and worker cap for the
// per-symbol fallback are deliberately configurable rather than constants.
type Config struct {
	MaxRetries      int
	BatchSize       int
	FallbackWorkers int
	RateLimitDelay  time.Duration
	InterChunkPause time.Duration
	BulkListTTL     time.Duration

	// Sleep is injected by tests to simulate backoff and pacing without
	// real delays. Nil means time.Sleep.
	Sleep utils.SleepFunc
}

// DefaultConfig returns conservative fetcher defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BatchSize:       10,
		FallbackWorkers: 3,
		RateLimitDelay:  100 * time.Millisecond,
		InterChunkPause: 1 * time.Second,
		BulkListTTL:     6 * time.Hour,
	}
}

// Fetcher coordinates provider access for one fund universe.
type Fetcher struct {
	provider provider.Provider
	cache    *cache.Cache
	limiter  *rate.Limiter
	list     *instrumentList
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

// New creates a Fetcher. The limiter enforces the minimum inter-call delay
// globally across all symbols and workers.
func New(p provider.Provider, c *cache.Cache, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	limit := rate.Inf
	if cfg.RateLimitDelay > 0 {
		limit = rate.Every(cfg.RateLimitDelay)
	}
	return &Fetcher{
		provider: p,
		cache:    c,
		limiter:  rate.NewLimiter(limit, 1),
		list:     newInstrumentList(cfg.BulkListTTL, nil),
		cfg:      cfg,
		log:      logging.WithComponent(logger, "fetcher"),
		now:      time.Now,
	}
}

func (f *Fetcher) retryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   f.cfg.MaxRetries,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Sleep:         f.cfg.Sleep,
	}
}

func (f *Fetcher) pause(d time.Duration) {
	if f.cfg.Sleep != nil {
		f.cfg.Sleep(d)
		return
	}
	time.Sleep(d)
}

// bulkList returns a fresh bulk instrument list, refreshing it through the
// provider when the TTL has lapsed. A failed refresh falls back to the last
// successful copy; only with no copy at all does it return an error.
func (f *Fetcher) bulkList(ctx context.Context) error {
	if f.list.fresh() {
		return nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	instruments, err := f.provider.BulkSpot(ctx)
	if err != nil {
		if f.list.hasCopy() {
			f.log.Warn().Err(err).Msg("Bulk list refresh failed, serving stale copy")
			return nil
		}
		return errors.ErrBulkListUnavailable
	}

	f.list.replace(instruments)
	f.log.Info().Int("instruments", len(instruments)).Msg("Bulk instrument list refreshed")
	return nil
}

// Current returns the current snapshot for one fund. Malformed codes fail
// fast with ErrInvalidSymbol before any network activity. A fund missing
// from the bulk list degrades to a metadata-only snapshot with zero prices.
func (f *Fetcher) Current(ctx context.Context, code string) (models.Snapshot, error) {
	if !models.ValidSymbol(code) {
		f.log.Warn().Str("symbol", code).Msg("Rejecting invalid fund code")
		return models.Snapshot{}, errors.ErrInvalidSymbol
	}

	log := logging.WithSymbol(f.log, code)
	snap, err := utils.RetryWithResult(ctx, f.retryConfig(), func() (models.Snapshot, error) {
		if err := f.bulkList(ctx); err == nil {
			if inst, ok := f.list.lookup(code); ok {
				return inst.Snapshot(f.now()), nil
			}
		}

		// Degraded path: metadata only, prices zeroed until a later sweep.
		// infoOnce keeps the retry ceiling with the outer loop.
		info, err := f.infoOnce(ctx, code)
		if err != nil {
			return models.Snapshot{}, err
		}
		log.Warn().Msg("Serving metadata-only snapshot, price pending")
		return models.Snapshot{
			Code:       code,
			Name:       info.Name,
			Currency:   info.Currency,
			LastUpdate: f.now(),
		}, nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Current data fetch failed")
		return models.Snapshot{}, errors.ErrSymbolNotFound
	}
	return snap, nil
}

// BatchCurrent returns snapshots for many funds. Primary strategy: one bulk
// call demultiplexed locally, bounding network calls to O(1) for any batch
// size. If the bulk call itself fails, it degrades to chunked concurrent
// per-symbol fetches. The result map contains only the symbols that
// resolved; absence means "no data", not an error.
func (f *Fetcher) BatchCurrent(ctx context.Context, codes []string) map[string]models.Snapshot {
	f.log.Info().Int("funds", len(codes)).Msg("Batch current fetch started")

	if err := f.bulkList(ctx); err != nil {
		f.log.Warn().Err(err).Msg("Bulk list unavailable, falling back to per-symbol fetches")
		return f.batchCurrentFallback(ctx, codes)
	}

	results := make(map[string]models.Snapshot, len(codes))
	for _, code := range codes {
		if !models.ValidSymbol(code) {
			f.log.Warn().Str("symbol", code).Msg("Skipping invalid fund code")
			continue
		}
		inst, ok := f.list.lookup(code)
		if !ok {
			f.log.Warn().Str("symbol", code).Msg("Fund not present in bulk list")
			continue
		}
		results[code] = inst.Snapshot(f.now())
	}

	f.log.Info().Int("resolved", len(results)).Int("requested", len(codes)).
		Msg("Batch current fetch complete")
	return results
}

// batchCurrentFallback partitions codes into fixed-size chunks and issues
// concurrent per-symbol fetches bounded by the worker cap, pausing between
// chunks to respect the provider rate limit.
func (f *Fetcher) batchCurrentFallback(ctx context.Context, codes []string) map[string]models.Snapshot {
	results := make(map[string]models.Snapshot)
	var mu sync.Mutex

	chunks := chunkStrings(codes, f.cfg.BatchSize)
	f.log.Info().Int("chunks", len(chunks)).Msg("Per-symbol fallback engaged")

	for i, chunk := range chunks {
		workers := f.cfg.FallbackWorkers
		if len(chunk) < workers {
			workers = len(chunk)
		}

		jobs := make(chan string)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for code := range jobs {
					snap, err := f.Current(ctx, code)
					if err != nil {
						f.log.Warn().Err(err).Str("symbol", code).Msg("Fallback fetch failed")
						continue
					}
					mu.Lock()
					results[code] = snap
					mu.Unlock()
				}
			}()
		}
		for _, code := range chunk {
			jobs <- code
		}
		close(jobs)
		wg.Wait()

		if i < len(chunks)-1 {
			f.pause(f.cfg.InterChunkPause)
		}
	}

	f.log.Info().Int("resolved", len(results)).Int("requested", len(codes)).
		Msg("Per-symbol fallback complete")
	return results
}

// Historical returns the bar series for (code, period), consulting the
// durable cache before the network. Fresh results are normalized and
// persisted before returning.
func (f *Fetcher) Historical(ctx context.Context, code, period string) (models.Series, error) {
	if !models.ValidSymbol(code) {
		return models.Series{}, errors.ErrInvalidSymbol
	}

	if series, ok := f.cache.GetSeries(code, period); ok {
		f.log.Debug().Str("symbol", code).Str("period", period).Msg("Historical cache hit")
		return series, nil
	}

	start, end := dateRange(period, f.now())
	bars, err := utils.RetryWithResult(ctx, f.retryConfig(), func() ([]models.Bar, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return f.provider.HistoricalBars(ctx, code, start, end)
	})
	if err != nil {
		f.log.Error().Err(err).Str("symbol", code).Str("period", period).
			Msg("Historical data fetch failed")
		return models.Series{}, errors.ErrDataNotFound
	}

	series := models.NewSeries(code, period, normalizeBars(bars))
	if err := f.cache.PutSeries(series); err != nil {
		f.log.Warn().Err(err).Str("symbol", code).Msg("Failed to persist series")
	}
	return series, nil
}

// BatchHistorical returns series for many funds. All symbols are
// cache-checked first; only misses go through a bounded worker pool.
// Failures are collected, not propagated; failed symbols are simply
// omitted from the result map.
func (f *Fetcher) BatchHistorical(ctx context.Context, codes []string, period string, maxWorkers int) map[string]models.Series {
	if len(codes) == 0 {
		return map[string]models.Series{}
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	results := make(map[string]models.Series, len(codes))
	var missing []string
	for _, code := range codes {
		if series, ok := f.cache.GetSeries(code, period); ok {
			results[code] = series
		} else {
			missing = append(missing, code)
		}
	}

	if len(missing) > 0 {
		if maxWorkers > len(missing) {
			maxWorkers = len(missing)
		}
		var mu sync.Mutex
		jobs := make(chan string)
		var wg sync.WaitGroup
		for w := 0; w < maxWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for code := range jobs {
					series, err := f.Historical(ctx, code, period)
					if err != nil {
						f.log.Warn().Err(err).Str("symbol", code).Msg("Historical fetch failed")
						continue
					}
					mu.Lock()
					results[code] = series
					mu.Unlock()
				}
			}()
		}
		for _, code := range missing {
			jobs <- code
		}
		close(jobs)
		wg.Wait()
	}

	hitRate := float64(len(codes)-len(missing)) / float64(len(codes)) * 100
	f.log.Info().
		Int("resolved", len(results)).
		Int("requested", len(codes)).
		Float64("cache_hit_pct", hitRate).
		Msg("Batch historical fetch complete")
	return results
}

// Info returns descriptive metadata for one fund, served from the info
// cache namespace when fresh.
func (f *Fetcher) Info(ctx context.Context, code string) (models.InstrumentInfo, error) {
	if !models.ValidSymbol(code) {
		return models.InstrumentInfo{}, errors.ErrInvalidSymbol
	}
	return utils.RetryWithResult(ctx, f.retryConfig(), func() (models.InstrumentInfo, error) {
		return f.infoOnce(ctx, code)
	})
}

// infoOnce performs one cache-then-provider metadata lookup. Callers already
// inside a retry loop use it directly so a dead metadata endpoint is hit at
// most MaxRetries times in total.
func (f *Fetcher) infoOnce(ctx context.Context, code string) (models.InstrumentInfo, error) {
	if info, ok := f.cache.GetInfo(code); ok {
		return info, nil
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return models.InstrumentInfo{}, err
	}
	info, err := f.provider.FundInfo(ctx, code)
	if err != nil {
		return models.InstrumentInfo{}, err
	}
	if err := f.cache.PutInfo(info); err != nil {
		f.log.Warn().Err(err).Str("symbol", code).Msg("Failed to persist fund info")
	}
	return info, nil
}

// RefreshInstrumentList drops the in-memory bulk list and refetches it.
func (f *Fetcher) RefreshInstrumentList(ctx context.Context) bool {
	f.log.Info().Msg("Forcing bulk instrument list refresh")
	f.list.invalidate()
	if err := f.bulkList(ctx); err != nil {
		f.log.Error().Err(err).Msg("Bulk instrument list refresh failed")
		return false
	}
	return true
}

// Summary describes fetcher state for the status surface.
type Summary struct {
	TotalFunds   int        `json:"total_funds"`
	ValidFunds   int        `json:"valid_funds"`
	InvalidFunds int        `json:"invalid_funds"`
	InvalidCodes []string   `json:"invalid_codes,omitempty"`
	BulkList     ListStatus `json:"bulk_list"`
	DataSource   string     `json:"data_source"`
}

// Summarize validates the given universe and reports bulk list state.
func (f *Fetcher) Summarize(codes []string) Summary {
	s := Summary{
		TotalFunds: len(codes),
		BulkList:   f.list.status(),
		DataSource: "eastmoney",
	}
	for _, code := range codes {
		if models.ValidSymbol(code) {
			s.ValidFunds++
		} else {
			s.InvalidFunds++
			s.InvalidCodes = append(s.InvalidCodes, code)
		}
	}
	return s
}

// dateRange maps a period label to a provider date range ending now.
// Unrecognized labels default to 60 days.
func dateRange(period string, now time.Time) (time.Time, time.Time) {
	days := 60
	switch {
	case strings.HasSuffix(period, "d"):
		if n, err := parsePositiveInt(strings.TrimSuffix(period, "d")); err == nil {
			days = n
		}
	case period == "1y":
		days = 365
	}
	return now.AddDate(0, 0, -days), now
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errors.ErrConfigInvalid
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.ErrConfigInvalid
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, errors.ErrConfigInvalid
	}
	return n, nil
}

// normalizeBars sorts bars by date and drops duplicate dates, keeping the
// last occurrence, so the series invariant holds for any provider response.
func normalizeBars(bars []models.Bar) []models.Bar {
	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Date.Before(sorted[j-1].Date); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	out := sorted[:0]
	for _, b := range sorted {
		if len(out) > 0 && out[len(out)-1].Date.Equal(b.Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// chunkStrings partitions items into fixed-size chunks.
func chunkStrings(items []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var chunks [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}
