package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/config"
)

func testCLIConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Provider: config.ProviderConfig{
			RequestTimeout:   time.Second,
			MaxRetries:       3,
			BatchSize:        10,
			FallbackWorkers:  2,
			BulkListTTLHours: 6,
		},
		Cache: config.CacheConfig{
			Dir:                t.TempDir(),
			CurrentTTLHours:    1,
			HistoricalTTLHours: 24,
			InfoTTLHours:       168,
			MaxSizeMB:          10,
		},
		Reports: config.ReportConfig{
			Dir:     t.TempDir(),
			History: filepath.Join(t.TempDir(), "history.db"),
		},
	}
}

func TestNewRootCmdWiresTheGraph(t *testing.T) {
	cmd, err := NewRootCmd(testCLIConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == nil || !cmd.HasSubCommands() {
		t.Fatal("root command must carry subcommands")
	}
}

func TestNewRootCmdFailsOnUnusableCacheDir(t *testing.T) {
	cfg := testCLIConfig(t)

	// A regular file where the cache directory should go makes every
	// MkdirAll under it fail.
	blocker := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}
	cfg.Cache.Dir = filepath.Join(blocker, "cache")

	if _, err := NewRootCmd(cfg, zerolog.Nop()); err == nil {
		t.Fatal("unusable cache directory must fail command construction")
	}
}
