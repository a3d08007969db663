// Package cache provides a file-backed, namespace-isolated store for market
// data with TTL-based validity and size-bound eviction.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/logging"
	"etf-tracker/internal/models"
)

// Namespace identifies an isolated cache partition with its own TTL.
type Namespace string

const (
	NamespaceCurrent    Namespace = "current"
	NamespaceHistorical Namespace = "historical"
	NamespaceInfo       Namespace = "info"
)

var namespaces = []Namespace{NamespaceCurrent, NamespaceHistorical, NamespaceInfo}

// evictTargetFraction is how full the cache may remain after eviction.
const evictTargetFraction = 0.8

// Config holds cache construction parameters.
type Config struct {
	Dir           string
	CurrentTTL    time.Duration
	HistoricalTTL time.Duration
	InfoTTL       time.Duration
	MaxSizeBytes  int64
}

// Cache is a durable key-value store under one directory, one subdirectory
// per namespace, one file per (symbol[, period]). Entry validity is judged
// from file modification time, so touching or deleting files externally is
// a supported invalidation mechanism.
type Cache struct {
	dir     string
	ttls    map[Namespace]time.Duration
	maxSize int64
	log     zerolog.Logger
}

// New creates the cache directory tree and returns a Cache.
// An unusable directory is the only fatal condition.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir must not be empty")
	}
	for _, ns := range namespaces {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, string(ns)), 0755); err != nil {
			return nil, fmt.Errorf("creating cache namespace %s: %w", ns, err)
		}
	}

	c := &Cache{
		dir: cfg.Dir,
		ttls: map[Namespace]time.Duration{
			NamespaceCurrent:    cfg.CurrentTTL,
			NamespaceHistorical: cfg.HistoricalTTL,
			NamespaceInfo:       cfg.InfoTTL,
		},
		maxSize: cfg.MaxSizeBytes,
		log:     logging.WithComponent(logger, "cache"),
	}

	c.log.Info().
		Str("dir", cfg.Dir).
		Int64("max_size_bytes", cfg.MaxSizeBytes).
		Msg("Cache initialized")

	return c, nil
}

func (c *Cache) path(ns Namespace, name string) string {
	return filepath.Join(c.dir, string(ns), name)
}

// valid reports whether the file at path is younger than the namespace TTL.
// Validity is re-checked on every read; nothing is precomputed.
func (c *Cache) valid(ns Namespace, path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(fi.ModTime()) < c.ttls[ns]
}

// PutSnapshot stores a current-namespace snapshot.
func (c *Cache) PutSnapshot(snap models.Snapshot) error {
	return writeJSONAtomic(c.path(NamespaceCurrent, snap.Code+".json"), snap)
}

// GetSnapshot returns the cached snapshot for code, or ok=false if absent,
// expired, or unreadable. Corrupt entries count as misses.
func (c *Cache) GetSnapshot(code string) (models.Snapshot, bool) {
	path := c.path(NamespaceCurrent, code+".json")
	if !c.valid(NamespaceCurrent, path) {
		return models.Snapshot{}, false
	}
	var snap models.Snapshot
	if err := readJSON(path, &snap); err != nil {
		c.log.Warn().Err(err).Str("symbol", code).Msg("Discarding unreadable snapshot entry")
		return models.Snapshot{}, false
	}
	return snap, true
}

// PutSeries stores a historical-namespace series as a columnar table.
func (c *Cache) PutSeries(series models.Series) error {
	name := fmt.Sprintf("%s_%s.csv", series.Code, series.Period)
	return writeSeriesAtomic(c.path(NamespaceHistorical, name), series)
}

// GetSeries returns the cached series for (code, period), or ok=false on
// absence, expiry, or corruption.
func (c *Cache) GetSeries(code, period string) (models.Series, bool) {
	path := c.path(NamespaceHistorical, fmt.Sprintf("%s_%s.csv", code, period))
	if !c.valid(NamespaceHistorical, path) {
		return models.Series{}, false
	}
	series, err := readSeries(path, code, period)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", code).Str("period", period).
			Msg("Discarding unreadable series entry")
		return models.Series{}, false
	}
	return series, true
}

// PutInfo stores info-namespace fund metadata.
func (c *Cache) PutInfo(info models.InstrumentInfo) error {
	return writeJSONAtomic(c.path(NamespaceInfo, info.Code+".json"), info)
}

// GetInfo returns the cached metadata for code, or ok=false.
func (c *Cache) GetInfo(code string) (models.InstrumentInfo, bool) {
	path := c.path(NamespaceInfo, code+".json")
	if !c.valid(NamespaceInfo, path) {
		return models.InstrumentInfo{}, false
	}
	var info models.InstrumentInfo
	if err := readJSON(path, &info); err != nil {
		c.log.Warn().Err(err).Str("symbol", code).Msg("Discarding unreadable info entry")
		return models.InstrumentInfo{}, false
	}
	return info, true
}

// InvalidateExpired deletes every entry older than its namespace TTL and
// returns a per-namespace deletion count.
func (c *Cache) InvalidateExpired() map[Namespace]int {
	cleared := make(map[Namespace]int, len(namespaces))
	for _, ns := range namespaces {
		cleared[ns] = 0
		entries, err := os.ReadDir(filepath.Join(c.dir, string(ns)))
		if err != nil {
			c.log.Error().Err(err).Str("namespace", string(ns)).Msg("Failed to scan namespace")
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := c.path(ns, entry.Name())
			if c.valid(ns, path) {
				continue
			}
			if err := os.Remove(path); err != nil {
				c.log.Error().Err(err).Str("path", path).Msg("Failed to delete expired entry")
				continue
			}
			cleared[ns]++
		}
	}

	total := 0
	for _, n := range cleared {
		total += n
	}
	if total > 0 {
		c.log.Info().Interface("cleared", cleared).Msg("Expired cache entries removed")
	}
	return cleared
}

type fileEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// EnforceSizeBudget removes expired entries. If total size still exceeds
// the budget, or force is set, it deletes remaining entries
// oldest-by-mtime first until total size falls to 80% of the budget.
func (c *Cache) EnforceSizeBudget(force bool) error {
	c.InvalidateExpired()

	total, files := c.scan()
	if !force && total <= c.maxSize {
		return nil
	}

	c.log.Info().
		Int64("total_bytes", total).
		Int64("max_bytes", c.maxSize).
		Bool("force", force).
		Msg("Cache over budget, evicting oldest entries")

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	target := int64(float64(c.maxSize) * evictTargetFraction)
	deleted := 0
	for _, f := range files {
		if total <= target {
			break
		}
		if err := os.Remove(f.path); err != nil {
			c.log.Error().Err(err).Str("path", f.path).Msg("Failed to evict entry")
			continue
		}
		total -= f.size
		deleted++
	}

	c.log.Info().Int("deleted", deleted).Int64("total_bytes", total).Msg("Eviction complete")
	return nil
}

func (c *Cache) scan() (int64, []fileEntry) {
	var total int64
	var files []fileEntry
	for _, ns := range namespaces {
		entries, err := os.ReadDir(filepath.Join(c.dir, string(ns)))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			fi, err := entry.Info()
			if err != nil {
				continue
			}
			total += fi.Size()
			files = append(files, fileEntry{
				path:    c.path(ns, entry.Name()),
				size:    fi.Size(),
				modTime: fi.ModTime(),
			})
		}
	}
	return total, files
}

// Stats describes current cache occupancy and configuration.
type Stats struct {
	SizesBytes   map[Namespace]int64         `json:"sizes_bytes"`
	TotalBytes   int64                       `json:"total_bytes"`
	FileCounts   map[Namespace]int           `json:"file_counts"`
	TotalFiles   int                         `json:"total_files"`
	TTLs         map[Namespace]time.Duration `json:"ttls"`
	MaxSizeBytes int64                       `json:"max_size_bytes"`
	Dir          string                      `json:"dir"`
}

// Stats returns cache occupancy and configuration. Pure read.
func (c *Cache) Stats() Stats {
	stats := Stats{
		SizesBytes:   make(map[Namespace]int64, len(namespaces)),
		FileCounts:   make(map[Namespace]int, len(namespaces)),
		TTLs:         c.ttls,
		MaxSizeBytes: c.maxSize,
		Dir:          c.dir,
	}
	for _, ns := range namespaces {
		entries, err := os.ReadDir(filepath.Join(c.dir, string(ns)))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			fi, err := entry.Info()
			if err != nil {
				continue
			}
			stats.SizesBytes[ns] += fi.Size()
			stats.FileCounts[ns]++
		}
		stats.TotalBytes += stats.SizesBytes[ns]
		stats.TotalFiles += stats.FileCounts[ns]
	}
	return stats
}
