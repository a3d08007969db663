// Package analysis computes technical indicators and a composite score for
// one fund from its snapshot and historical series.
package analysis

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/config"
	"etf-tracker/internal/logging"
	"etf-tracker/internal/models"
)

// Mode indicates how much data backed a result.
type Mode string

const (
	// ModeBasic means only the current snapshot was available.
	ModeBasic Mode = "basic"
	// ModeFull means a historical series backed the indicators.
	ModeFull Mode = "full"
)

// Result holds the indicator values and composite score for one fund.
// Derived values are computed on demand and never written back to the cache.
type Result struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Mode          Mode      `json:"mode"`
	CurrentPrice  float64   `json:"current_price"`
	ChangePercent float64   `json:"change_percent"`
	MAShort       float64   `json:"ma_short"`
	MALong        float64   `json:"ma_long"`
	RSI           float64   `json:"rsi"`
	Volatility    float64   `json:"volatility"`
	Sharpe        float64   `json:"sharpe"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	Trend         string    `json:"trend"`
	TrendStrength float64   `json:"trend_strength"`
	RiskLevel     string    `json:"risk_level"`
	Score         float64   `json:"score"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Analyzer computes Results using the configured indicator parameters.
type Analyzer struct {
	cfg config.AnalysisConfig
	log zerolog.Logger
}

// New creates an Analyzer.
func New(cfg config.AnalysisConfig, logger zerolog.Logger) *Analyzer {
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = 14
	}
	if cfg.ShortMADays <= 0 {
		cfg.ShortMADays = 5
	}
	if cfg.LongMADays <= 0 {
		cfg.LongMADays = 20
	}
	return &Analyzer{
		cfg: cfg,
		log: logging.WithComponent(logger, "analysis"),
	}
}

// Analyze scores one fund. With no series, or one shorter than the long MA
// window, it falls back to a basic score from the snapshot alone.
func (a *Analyzer) Analyze(snap models.Snapshot, series *models.Series) Result {
	if series == nil || len(series.Bars) < a.cfg.LongMADays {
		return a.basic(snap)
	}
	return a.full(snap, *series)
}

func (a *Analyzer) basic(snap models.Snapshot) Result {
	// With only a one-day change to go on, anchor the score at neutral.
	score := clamp(50+snap.ChangePercent*2, 0, 100)

	return Result{
		Code:          snap.Code,
		Name:          snap.Name,
		Mode:          ModeBasic,
		CurrentPrice:  snap.CurrentPrice,
		ChangePercent: snap.ChangePercent,
		RSI:           50,
		Trend:         "unknown",
		RiskLevel:     "unknown",
		Score:         score,
		GeneratedAt:   time.Now(),
	}
}

func (a *Analyzer) full(snap models.Snapshot, series models.Series) Result {
	closes := series.ClosePrices()

	r := Result{
		Code:          snap.Code,
		Name:          snap.Name,
		Mode:          ModeFull,
		CurrentPrice:  snap.CurrentPrice,
		ChangePercent: snap.ChangePercent,
		MAShort:       series.MeanClose(a.cfg.ShortMADays),
		MALong:        series.MeanClose(a.cfg.LongMADays),
		RSI:           rsi(closes, a.cfg.RSIPeriod),
		GeneratedAt:   time.Now(),
	}

	returns := dailyReturns(closes)
	r.Volatility = stddev(returns) * math.Sqrt(252) * 100
	r.Sharpe = sharpe(returns, a.cfg.RiskFreeRate)
	r.MaxDrawdown = maxDrawdown(closes) * 100
	r.Trend, r.TrendStrength = trend(r.MAShort, r.MALong)
	r.RiskLevel = riskLevel(r.Volatility, r.Sharpe)
	r.Score = a.score(r)

	return r
}

// score folds the indicators into a 0-100 composite. Weights follow the
// momentum-heavy profile used for fund rotation.
func (a *Analyzer) score(r Result) float64 {
	score := 50.0

	// RSI: reward oversold, punish overbought.
	switch {
	case r.RSI < 30:
		score += 15
	case r.RSI > 70:
		score -= 15
	case r.RSI < 45:
		score += 5
	case r.RSI > 55:
		score -= 5
	}

	// Trend via MA cross.
	switch r.Trend {
	case "up":
		score += clamp(r.TrendStrength*2, 0, 15)
	case "down":
		score -= clamp(-r.TrendStrength*2, 0, 15)
	}

	// Risk-adjusted return.
	switch {
	case r.Sharpe > 1:
		score += 10
	case r.Sharpe > 0.5:
		score += 5
	case r.Sharpe < 0:
		score -= 10
	}

	// Deep drawdowns cap enthusiasm.
	if r.MaxDrawdown < -20 {
		score -= 10
	}

	return clamp(score, 0, 100)
}

// rsi computes the Relative Strength Index with Wilder smoothing.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func dailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// sharpe annualizes mean daily return over daily volatility.
func sharpe(returns []float64, riskFreeRate float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	annualReturn := mean(returns) * 252
	annualVol := sd * math.Sqrt(252)
	return (annualReturn - riskFreeRate) / annualVol
}

// maxDrawdown returns the deepest peak-to-trough decline as a negative
// fraction of the peak.
func maxDrawdown(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	peak := closes[0]
	worst := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			dd := c/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func trend(maShort, maLong float64) (string, float64) {
	if maLong == 0 {
		return "unknown", 0
	}
	strength := (maShort - maLong) / maLong * 100
	switch {
	case strength > 0.5:
		return "up", strength
	case strength < -0.5:
		return "down", strength
	}
	return "sideways", strength
}

func riskLevel(volatility, sharpe float64) string {
	switch {
	case volatility > 30:
		return "high"
	case volatility > 15:
		if sharpe < 0 {
			return "high"
		}
		return "medium"
	default:
		return "low"
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		d := v - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
