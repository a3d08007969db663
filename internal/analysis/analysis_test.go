package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"etf-tracker/internal/config"
	"etf-tracker/internal/models"
)

func testAnalyzer() *Analyzer {
	return New(config.AnalysisConfig{
		RSIPeriod:    14,
		ShortMADays:  5,
		LongMADays:   20,
		RiskFreeRate: 0.025,
	}, zerolog.Nop())
}

func seriesFromCloses(closes []float64) *models.Series {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Date: base.AddDate(0, 0, i), Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 10000}
	}
	s := models.NewSeries("510300", "60d", bars)
	return &s
}

func snapshotFor(price, changePct float64) models.Snapshot {
	return models.Snapshot{
		Code:          "510300",
		Name:          "CSI 300 ETF",
		CurrentPrice:  price,
		ChangePercent: changePct,
		Currency:      "CNY",
	}
}

func TestAnalyzeFallsBackToBasicWithoutHistory(t *testing.T) {
	a := testAnalyzer()

	r := a.Analyze(snapshotFor(4.12, 1.5), nil)
	if r.Mode != ModeBasic {
		t.Errorf("mode = %s, want basic", r.Mode)
	}
	if r.Score <= 50 {
		t.Errorf("positive change should score above neutral, got %v", r.Score)
	}

	// Too few bars for the long MA also degrades to basic.
	short := seriesFromCloses([]float64{4, 4.1, 4.2})
	r = a.Analyze(snapshotFor(4.2, 0), short)
	if r.Mode != ModeBasic {
		t.Errorf("mode = %s, want basic for a short series", r.Mode)
	}
}

func TestAnalyzeFullComputesIndicators(t *testing.T) {
	a := testAnalyzer()

	// Steady uptrend.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 4.0 + float64(i)*0.02
	}
	r := a.Analyze(snapshotFor(closes[len(closes)-1], 0.5), seriesFromCloses(closes))

	if r.Mode != ModeFull {
		t.Fatalf("mode = %s, want full", r.Mode)
	}
	if r.MAShort <= r.MALong {
		t.Errorf("uptrend should have short MA %v above long MA %v", r.MAShort, r.MALong)
	}
	if r.Trend != "up" {
		t.Errorf("trend = %s, want up", r.Trend)
	}
	if r.RSI < 50 {
		t.Errorf("monotonic gains should push RSI above 50, got %v", r.RSI)
	}
	if r.MaxDrawdown != 0 {
		t.Errorf("monotonic uptrend has no drawdown, got %v", r.MaxDrawdown)
	}
}

func TestAnalyzeDowntrend(t *testing.T) {
	a := testAnalyzer()

	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 6.0 - float64(i)*0.02
	}
	r := a.Analyze(snapshotFor(closes[len(closes)-1], -0.5), seriesFromCloses(closes))

	if r.Trend != "down" {
		t.Errorf("trend = %s, want down", r.Trend)
	}
	if r.RSI > 50 {
		t.Errorf("monotonic losses should push RSI below 50, got %v", r.RSI)
	}
	if r.MaxDrawdown >= 0 {
		t.Errorf("downtrend must show a negative drawdown, got %v", r.MaxDrawdown)
	}
}

func TestMaxDrawdownKnownSequence(t *testing.T) {
	// Peak 10, trough 6: drawdown -40%.
	got := maxDrawdown([]float64{8, 10, 9, 6, 7})
	if math.Abs(got-(-0.4)) > 1e-9 {
		t.Errorf("maxDrawdown = %v, want -0.4", got)
	}
}

func TestProperty_IndicatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	a := testAnalyzer()

	closesGen := gen.SliceOfN(60, gen.Float64Range(0.5, 100.0))

	properties.Property("RSI stays within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			v := rsi(closes, 14)
			return v >= 0 && v <= 100
		},
		closesGen,
	))

	properties.Property("composite score stays within [0, 100]", prop.ForAll(
		func(closes []float64, changePct float64) bool {
			r := a.Analyze(snapshotFor(closes[len(closes)-1], changePct), seriesFromCloses(closes))
			return r.Score >= 0 && r.Score <= 100
		},
		closesGen,
		gen.Float64Range(-10, 10),
	))

	properties.Property("max drawdown is never positive", prop.ForAll(
		func(closes []float64) bool {
			return maxDrawdown(closes) <= 0
		},
		closesGen,
	))

	properties.TestingRun(t)
}
