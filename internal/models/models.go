// Package models provides domain models for the ETF tracking application.
package models

import (
	"math"
	"time"
)

// Market identifies the exchange a fund trades on.
type Market string

const (
	MarketShanghai Market = "SH"
	MarketShenzhen Market = "SZ"
	MarketUnknown  Market = "UNKNOWN"
)

// Snapshot represents the current market state for one fund.
// A Snapshot is immutable once constructed; a fresh fetch supersedes it.
type Snapshot struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	MarketCap     *float64  `json:"market_cap,omitempty"`
	Currency      string    `json:"currency"`
	LastUpdate    time.Time `json:"last_update"`
}

// Bar represents OHLCV data for one trading interval.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Series represents an ordered historical sequence of price bars for one
// fund over a named period ("7d", "60d", "1y", ...). Bars are sorted by
// strictly increasing date with no duplicates.
type Series struct {
	Code      string
	Period    string
	Bars      []Bar
	StartDate time.Time
	EndDate   time.Time
}

// NewSeries constructs a Series from bars, deriving start/end dates.
func NewSeries(code, period string, bars []Bar) Series {
	s := Series{Code: code, Period: period, Bars: bars}
	if len(bars) > 0 {
		s.StartDate = bars[0].Date
		s.EndDate = bars[len(bars)-1].Date
	}
	return s
}

// Validate reports whether bar dates are strictly increasing.
func (s Series) Validate() bool {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Date.After(s.Bars[i-1].Date) {
			return false
		}
	}
	return true
}

// ClosePrices returns the close price of every bar in order.
func (s Series) ClosePrices() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// MeanClose returns the mean close over the trailing days bars.
// days <= 0 or days >= len(bars) averages the whole series.
// Computed on demand, never stored.
func (s Series) MeanClose(days int) float64 {
	closes := s.tail(days)
	if len(closes) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range closes {
		sum += c
	}
	return sum / float64(len(closes))
}

// StdDevClose returns the sample standard deviation of the close price over
// the trailing days bars.
func (s Series) StdDevClose(days int) float64 {
	closes := s.tail(days)
	if len(closes) < 2 {
		return 0
	}
	mean := 0.0
	for _, c := range closes {
		mean += c
	}
	mean /= float64(len(closes))

	variance := 0.0
	for _, c := range closes {
		d := c - mean
		variance += d * d
	}
	variance /= float64(len(closes) - 1)
	return math.Sqrt(variance)
}

func (s Series) tail(days int) []float64 {
	closes := s.ClosePrices()
	if days > 0 && len(closes) > days {
		return closes[len(closes)-days:]
	}
	return closes
}

// InstrumentInfo holds static descriptive metadata for one fund.
type InstrumentInfo struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name,omitempty"`
	FundType      string    `json:"fund_type,omitempty"`
	FundCompany   string    `json:"fund_company,omitempty"`
	FundManager   string    `json:"fund_manager,omitempty"`
	InceptionDate string    `json:"inception_date,omitempty"`
	Scale         string    `json:"scale,omitempty"`
	Currency      string    `json:"currency"`
	LastUpdate    time.Time `json:"last_update"`
}

// Instrument is one row of the provider's bulk instrument list.
type Instrument struct {
	Code          string
	Name          string
	CurrentPrice  float64
	PreviousClose float64
	ChangePercent float64
	Volume        int64
}

// Snapshot converts a bulk-list row into a Snapshot taken at ts.
func (i Instrument) Snapshot(ts time.Time) Snapshot {
	return Snapshot{
		Code:          i.Code,
		Name:          i.Name,
		CurrentPrice:  i.CurrentPrice,
		PreviousClose: i.PreviousClose,
		ChangePercent: i.ChangePercent,
		Volume:        i.Volume,
		Currency:      "CNY",
		LastUpdate:    ts,
	}
}

// ValidSymbol reports whether code looks like a Chinese fund code:
// exactly six ASCII digits.
func ValidSymbol(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// shanghaiPrefixes and shenzhenPrefixes follow the CSRC fund code ranges.
var (
	shanghaiPrefixes = []string{"510", "511", "512", "513", "515", "516", "517", "518", "588"}
	shenzhenPrefixes = []string{"159", "160", "161", "162", "163", "164", "165", "166", "167", "168", "169"}
)

// MarketForSymbol classifies a fund code by exchange.
func MarketForSymbol(code string) Market {
	if !ValidSymbol(code) {
		return MarketUnknown
	}
	for _, p := range shanghaiPrefixes {
		if code[:3] == p {
			return MarketShanghai
		}
	}
	for _, p := range shenzhenPrefixes {
		if code[:3] == p {
			return MarketShenzhen
		}
	}
	switch code[0] {
	case '0', '2', '3':
		return MarketShenzhen
	case '6', '9':
		return MarketShanghai
	}
	return MarketShanghai
}
