package decision

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/config"
)

func testEngine() *Engine {
	return NewEngine(config.StrategyConfig{
		BuyRSIThreshold:    30,
		SellRSIThreshold:   70,
		BuyScoreThreshold:  70,
		SellScoreThreshold: 30,
		StopLossPercent:    8,
		TakeProfitPercent:  15,
	}, zerolog.Nop())
}

func fullResult(rsi, score float64, trend, riskLevel string) analysis.Result {
	return analysis.Result{
		Code:         "510300",
		Name:         "CSI 300 ETF",
		Mode:         analysis.ModeFull,
		CurrentPrice: 4.0,
		RSI:          rsi,
		Score:        score,
		Trend:        trend,
		RiskLevel:    riskLevel,
	}
}

func TestBasicModeAlwaysHolds(t *testing.T) {
	e := testEngine()

	d := e.Decide(analysis.Result{
		Code:  "510300",
		Mode:  analysis.ModeBasic,
		Score: 95,
	})
	if d.Action != ActionHold {
		t.Errorf("basic mode must hold, got %s", d.Action)
	}
	if len(d.Reasons) == 0 {
		t.Error("hold on thin data should explain itself")
	}
}

func TestStrongBuyOnAlignedSignals(t *testing.T) {
	e := testEngine()

	// Oversold, uptrend, and score over threshold: three bullish signals.
	d := e.Decide(fullResult(25, 80, "up", "low"))
	if d.Action != ActionStrongBuy {
		t.Errorf("action = %s, want strong_buy", d.Action)
	}
	if d.TargetPrice <= d.CurrentPrice {
		t.Errorf("buy target %v must sit above current price %v", d.TargetPrice, d.CurrentPrice)
	}
	if d.StopLoss >= d.CurrentPrice {
		t.Errorf("stop loss %v must sit below current price %v", d.StopLoss, d.CurrentPrice)
	}
}

func TestSellOnBearishSignals(t *testing.T) {
	e := testEngine()

	d := e.Decide(fullResult(75, 20, "down", "medium"))
	if d.Action != ActionStrongSell {
		t.Errorf("action = %s, want strong_sell", d.Action)
	}
}

func TestHoldOnMixedSignals(t *testing.T) {
	e := testEngine()

	d := e.Decide(fullResult(50, 50, "sideways", "low"))
	if d.Action != ActionHold {
		t.Errorf("action = %s, want hold", d.Action)
	}
	if d.TargetPrice != 0 {
		t.Errorf("hold must not set price targets, got %v", d.TargetPrice)
	}
}

func TestHighRiskDemotesBuy(t *testing.T) {
	e := testEngine()

	// Two bullish signals would be a buy, but high risk demotes it.
	calm := e.Decide(fullResult(25, 80, "sideways", "low"))
	risky := e.Decide(fullResult(25, 80, "sideways", "high"))

	if calm.Action != ActionBuy {
		t.Fatalf("low-risk action = %s, want buy", calm.Action)
	}
	if risky.Action != ActionHold {
		t.Errorf("high-risk action = %s, want hold", risky.Action)
	}
}

func TestSummarize(t *testing.T) {
	e := testEngine()
	decisions := map[string]Decision{
		"510300": e.Decide(fullResult(25, 80, "up", "low")),
		"510500": e.Decide(fullResult(75, 20, "down", "low")),
		"159915": e.Decide(fullResult(50, 50, "sideways", "low")),
	}

	s := Summarize(decisions)
	if s.Total != 3 {
		t.Errorf("total = %d, want 3", s.Total)
	}
	if len(s.TopBuys) != 1 || s.TopBuys[0] != "510300" {
		t.Errorf("top buys = %v, want [510300]", s.TopBuys)
	}
	if len(s.TopSells) != 1 || s.TopSells[0] != "510500" {
		t.Errorf("top sells = %v, want [510500]", s.TopSells)
	}
}

func TestProperty_ConfidenceBoundedAndReasonsPresent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	e := testEngine()

	properties.Property("every decision carries bounded confidence and at least one reason", prop.ForAll(
		func(rsi, score float64, trend, risk string) bool {
			d := e.Decide(fullResult(rsi, score, trend, risk))
			if d.Confidence < 0 || d.Confidence > 1 {
				return false
			}
			return len(d.Reasons) > 0
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.OneConstOf("up", "down", "sideways", "unknown"),
		gen.OneConstOf("low", "medium", "high", "unknown"),
	))

	properties.TestingRun(t)
}
