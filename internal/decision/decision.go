// Package decision turns analysis results into buy/sell/hold calls using
// configurable thresholds.
package decision

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/config"
	"etf-tracker/internal/logging"
)

// Action is the recommended position change for one fund.
type Action string

const (
	ActionStrongBuy  Action = "strong_buy"
	ActionBuy        Action = "buy"
	ActionHold       Action = "hold"
	ActionSell       Action = "sell"
	ActionStrongSell Action = "strong_sell"
)

// Decision is one recommendation with its supporting reasons and price
// levels.
type Decision struct {
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Action       Action    `json:"action"`
	Confidence   float64   `json:"confidence"`
	Score        float64   `json:"score"`
	Reasons      []string  `json:"reasons"`
	CurrentPrice float64   `json:"current_price"`
	TargetPrice  float64   `json:"target_price,omitempty"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Engine maps analysis results to decisions.
type Engine struct {
	cfg config.StrategyConfig
	log zerolog.Logger
}

// NewEngine creates a decision engine with the given strategy thresholds.
func NewEngine(cfg config.StrategyConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: logging.WithComponent(logger, "decision"),
	}
}

// Decide produces a recommendation for one analyzed fund.
func (e *Engine) Decide(r analysis.Result) Decision {
	d := Decision{
		Code:         r.Code,
		Name:         r.Name,
		Score:        r.Score,
		CurrentPrice: r.CurrentPrice,
		GeneratedAt:  time.Now(),
	}

	// Without indicators, never recommend a position change.
	if r.Mode == analysis.ModeBasic {
		d.Action = ActionHold
		d.Confidence = 0.2
		d.Reasons = append(d.Reasons, "insufficient history for a full analysis")
		return d
	}

	var bullish, bearish int

	if r.RSI <= e.cfg.BuyRSIThreshold {
		bullish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("RSI %.1f is oversold", r.RSI))
	}
	if r.RSI >= e.cfg.SellRSIThreshold {
		bearish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("RSI %.1f is overbought", r.RSI))
	}
	switch r.Trend {
	case "up":
		bullish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("uptrend, short MA %.1f%% above long MA", r.TrendStrength))
	case "down":
		bearish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("downtrend, short MA %.1f%% below long MA", -r.TrendStrength))
	}
	if r.Score >= e.cfg.BuyScoreThreshold {
		bullish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("composite score %.0f above buy threshold", r.Score))
	}
	if r.Score <= e.cfg.SellScoreThreshold {
		bearish++
		d.Reasons = append(d.Reasons, fmt.Sprintf("composite score %.0f below sell threshold", r.Score))
	}
	if r.RiskLevel == "high" {
		d.Reasons = append(d.Reasons, fmt.Sprintf("high risk, annualized volatility %.1f%%", r.Volatility))
	}

	d.Action, d.Confidence = resolve(bullish, bearish, r.RiskLevel)

	switch d.Action {
	case ActionBuy, ActionStrongBuy:
		d.TargetPrice = round2(r.CurrentPrice * (1 + e.cfg.TakeProfitPercent/100))
		d.StopLoss = round2(r.CurrentPrice * (1 - e.cfg.StopLossPercent/100))
	case ActionSell, ActionStrongSell:
		d.TargetPrice = round2(r.CurrentPrice * (1 - e.cfg.TakeProfitPercent/100))
	}

	if len(d.Reasons) == 0 {
		d.Reasons = append(d.Reasons, "no signal crossed a threshold")
	}

	e.log.Debug().
		Str("symbol", d.Code).
		Str("action", string(d.Action)).
		Float64("confidence", d.Confidence).
		Msg("Decision made")
	return d
}

// BatchDecide produces decisions for every analyzed fund, keyed by code.
func (e *Engine) BatchDecide(results map[string]analysis.Result) map[string]Decision {
	decisions := make(map[string]Decision, len(results))
	for code, r := range results {
		decisions[code] = e.Decide(r)
	}
	return decisions
}

// resolve maps signal counts to an action. High risk demotes strong calls
// one notch.
func resolve(bullish, bearish int, riskLevel string) (Action, float64) {
	net := bullish - bearish
	var action Action
	var confidence float64
	switch {
	case net >= 3:
		action, confidence = ActionStrongBuy, 0.9
	case net == 2:
		action, confidence = ActionBuy, 0.7
	case net == 1:
		action, confidence = ActionBuy, 0.5
	case net == -1:
		action, confidence = ActionSell, 0.5
	case net == -2:
		action, confidence = ActionSell, 0.7
	case net <= -3:
		action, confidence = ActionStrongSell, 0.9
	default:
		action, confidence = ActionHold, 0.4
	}

	if riskLevel == "high" {
		switch action {
		case ActionStrongBuy:
			action, confidence = ActionBuy, confidence-0.1
		case ActionBuy:
			action, confidence = ActionHold, confidence-0.1
		}
	}
	return action, confidence
}

// Summary counts decisions by action.
type Summary struct {
	Total       int            `json:"total"`
	ByAction    map[Action]int `json:"by_action"`
	TopBuys     []string       `json:"top_buys"`
	TopSells    []string       `json:"top_sells"`
	AvgScore    float64        `json:"avg_score"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Summarize aggregates a decision batch.
func Summarize(decisions map[string]Decision) Summary {
	s := Summary{
		Total:       len(decisions),
		ByAction:    make(map[Action]int),
		GeneratedAt: time.Now(),
	}
	var scoreSum float64
	for code, d := range decisions {
		s.ByAction[d.Action]++
		scoreSum += d.Score
		switch d.Action {
		case ActionBuy, ActionStrongBuy:
			s.TopBuys = append(s.TopBuys, code)
		case ActionSell, ActionStrongSell:
			s.TopSells = append(s.TopSells, code)
		}
	}
	if s.Total > 0 {
		s.AvgScore = scoreSum / float64(s.Total)
	}
	return s
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
