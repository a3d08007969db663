package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/models"
)

func newTestCache(t *testing.T, maxSize int64) *Cache {
	t.Helper()
	c, err := New(Config{
		Dir:           t.TempDir(),
		CurrentTTL:    1 * time.Hour,
		HistoricalTTL: 24 * time.Hour,
		InfoTTL:       168 * time.Hour,
		MaxSizeBytes:  maxSize,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	return c
}

func testSnapshot(code string) models.Snapshot {
	return models.Snapshot{
		Code:          code,
		Name:          "CSI 300 ETF",
		CurrentPrice:  4.123,
		PreviousClose: 4.1,
		ChangePercent: 0.56,
		Volume:        987654,
		Currency:      "CNY",
		LastUpdate:    time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
	}
}

func testSeries(code, period string, n int) models.Series {
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Date:   base.AddDate(0, 0, i),
			Open:   4.0 + float64(i)*0.01,
			High:   4.1 + float64(i)*0.01,
			Low:    3.9 + float64(i)*0.01,
			Close:  4.05 + float64(i)*0.01,
			Volume: int64(100000 + i),
		}
	}
	return models.NewSeries(code, period, bars)
}

func TestSnapshotRoundTrip(t *testing.T) {
	c := newTestCache(t, 1<<20)

	want := testSnapshot("510300")
	if err := c.PutSnapshot(want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.GetSnapshot("510300")
	if !ok {
		t.Fatal("expected a hit for a just-written snapshot")
	}
	if got.Code != want.Code || got.CurrentPrice != want.CurrentPrice || got.Volume != want.Volume {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}

	if _, ok := c.GetSnapshot("159915"); ok {
		t.Error("expected a miss for a never-written code")
	}
}

func TestSeriesRoundTripPreservesOrder(t *testing.T) {
	c := newTestCache(t, 1<<20)

	want := testSeries("510300", "60d", 10)
	if err := c.PutSeries(want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.GetSeries("510300", "60d")
	if !ok {
		t.Fatal("expected a hit for a just-written series")
	}
	if len(got.Bars) != len(want.Bars) {
		t.Fatalf("got %d bars, want %d", len(got.Bars), len(want.Bars))
	}
	if !got.Validate() {
		t.Error("read-back series must keep strictly increasing dates")
	}
	for i := range want.Bars {
		if !got.Bars[i].Date.Equal(want.Bars[i].Date) || got.Bars[i].Close != want.Bars[i].Close {
			t.Errorf("bar %d mismatch: got %+v, want %+v", i, got.Bars[i], want.Bars[i])
		}
	}

	// Period is part of the key.
	if _, ok := c.GetSeries("510300", "30d"); ok {
		t.Error("different period must be a distinct entry")
	}
}

func TestInfoRoundTrip(t *testing.T) {
	c := newTestCache(t, 1<<20)

	want := models.InstrumentInfo{Code: "513100", Name: "Nasdaq 100 ETF", Currency: "CNY", LastUpdate: time.Now().UTC()}
	if err := c.PutInfo(want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := c.GetInfo("513100")
	if !ok {
		t.Fatal("expected a hit")
	}
	if got.Name != want.Name {
		t.Errorf("name = %q, want %q", got.Name, want.Name)
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t, 1<<20)

	if err := c.PutSnapshot(testSnapshot("510300")); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Age the file past the current-namespace TTL.
	path := filepath.Join(c.dir, string(NamespaceCurrent), "510300.json")
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, ok := c.GetSnapshot("510300"); ok {
		t.Error("expired entry must be a miss")
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c := newTestCache(t, 1<<20)

	path := filepath.Join(c.dir, string(NamespaceCurrent), "510300.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := c.GetSnapshot("510300"); ok {
		t.Error("corrupt snapshot must be a miss, not an error")
	}

	seriesPath := filepath.Join(c.dir, string(NamespaceHistorical), "510300_60d.csv")
	if err := os.WriteFile(seriesPath, []byte("garbage,,,\n1,2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := c.GetSeries("510300", "60d"); ok {
		t.Error("corrupt series must be a miss, not an error")
	}
}

func TestInvalidateExpiredCountsPerNamespace(t *testing.T) {
	c := newTestCache(t, 1<<20)

	c.PutSnapshot(testSnapshot("510300"))
	c.PutSnapshot(testSnapshot("159915"))
	c.PutSeries(testSeries("510300", "60d", 5))
	c.PutInfo(models.InstrumentInfo{Code: "513100", Name: "x", Currency: "CNY"})

	// Expire both snapshots but nothing else.
	old := time.Now().Add(-2 * time.Hour)
	for _, code := range []string{"510300", "159915"} {
		path := filepath.Join(c.dir, string(NamespaceCurrent), code+".json")
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	cleared := c.InvalidateExpired()
	if cleared[NamespaceCurrent] != 2 {
		t.Errorf("current namespace cleared = %d, want 2", cleared[NamespaceCurrent])
	}
	if cleared[NamespaceHistorical] != 0 || cleared[NamespaceInfo] != 0 {
		t.Errorf("unexpired namespaces must be untouched, got %v", cleared)
	}

	// Second pass finds nothing left to clear.
	cleared = c.InvalidateExpired()
	for ns, n := range cleared {
		if n != 0 {
			t.Errorf("second pass cleared %d entries in %s", n, ns)
		}
	}
}

func TestEnforceSizeBudgetEvictsOldestFirst(t *testing.T) {
	c := newTestCache(t, 1<<20)

	// Three entries with distinct ages, all within TTL.
	now := time.Now()
	for i, code := range []string{"510300", "510500", "159915"} {
		if err := c.PutSnapshot(testSnapshot(code)); err != nil {
			t.Fatalf("put: %v", err)
		}
		mtime := now.Add(time.Duration(-30+i*10) * time.Minute)
		path := filepath.Join(c.dir, string(NamespaceCurrent), code+".json")
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	// Shrink the budget so only roughly one entry fits after eviction to
	// the 80% target.
	total, _ := c.scan()
	c.maxSize = total / 2

	if err := c.EnforceSizeBudget(false); err != nil {
		t.Fatalf("enforce: %v", err)
	}

	after, files := c.scan()
	if after > int64(float64(c.maxSize)*evictTargetFraction) {
		t.Errorf("size after eviction %d exceeds target %d", after, int64(float64(c.maxSize)*evictTargetFraction))
	}

	// The newest entry must survive longer than older ones: whatever
	// remains must be the most recent mtimes.
	for _, f := range files {
		if filepath.Base(f.path) == "510300.json" {
			t.Error("oldest entry should have been evicted first")
		}
	}
}

func TestEnforceSizeBudgetNoopUnderBudget(t *testing.T) {
	c := newTestCache(t, 1<<20)
	c.PutSnapshot(testSnapshot("510300"))

	if err := c.EnforceSizeBudget(false); err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if _, ok := c.GetSnapshot("510300"); !ok {
		t.Error("under-budget cache must not evict")
	}
}
