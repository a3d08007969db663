package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/errors"
	"etf-tracker/internal/logging"
	"etf-tracker/internal/models"
)

const (
	spotBaseURL  = "https://push2.eastmoney.com/api/qt/clist/get"
	klineBaseURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	quoteBaseURL = "https://push2.eastmoney.com/api/qt/stock/get"

	// fs filter selecting the exchange-traded fund universe.
	etfMarketFilter = "b:MK0021,b:MK0022,b:MK0023,b:MK0024"
)

// EastMoneyProvider fetches fund data from the EastMoney public quote API.
type EastMoneyProvider struct {
	client *http.Client
	log    zerolog.Logger
}

// NewEastMoney creates an EastMoney provider with the given request timeout.
func NewEastMoney(timeout time.Duration, logger zerolog.Logger) *EastMoneyProvider {
	return &EastMoneyProvider{
		client: &http.Client{Timeout: timeout},
		log:    logger.With().Str("provider", "eastmoney").Logger(),
	}
}

type spotResponse struct {
	Data struct {
		Total int `json:"total"`
		Diff  []struct {
			Code          string      `json:"f12"`
			Name          string      `json:"f14"`
			Precision     int         `json:"f1"`
			Price         json.Number `json:"f2"`
			ChangePercent json.Number `json:"f3"`
			Volume        json.Number `json:"f5"`
			PrevClose     json.Number `json:"f18"`
		} `json:"diff"`
	} `json:"data"`
}

// BulkSpot fetches the full ETF list in one call.
func (p *EastMoneyProvider) BulkSpot(ctx context.Context) ([]models.Instrument, error) {
	params := url.Values{
		"pn":     {"1"},
		"pz":     {"10000"},
		"po":     {"1"},
		"np":     {"1"},
		"fltt":   {"1"},
		"invt":   {"2"},
		"fid":    {"f12"},
		"fs":     {etfMarketFilter},
		"fields": {"f1,f2,f3,f5,f12,f14,f18"},
	}

	body, err := p.get(ctx, "bulk_spot", "", spotBaseURL, params)
	if err != nil {
		return nil, errors.NewProviderError("bulk_spot", "", err)
	}

	var resp spotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewProviderError("bulk_spot", "", err)
	}
	if len(resp.Data.Diff) == 0 {
		return nil, errors.NewProviderError("bulk_spot", "", errors.ErrEmptyResponse)
	}

	instruments := make([]models.Instrument, 0, len(resp.Data.Diff))
	for _, row := range resp.Data.Diff {
		scale := math.Pow10(row.Precision)
		if scale <= 0 {
			scale = 100
		}
		instruments = append(instruments, models.Instrument{
			Code:          row.Code,
			Name:          row.Name,
			CurrentPrice:  scaledFloat(row.Price, scale),
			PreviousClose: scaledFloat(row.PrevClose, scale),
			ChangePercent: scaledFloat(row.ChangePercent, 100),
			Volume:        asInt64(row.Volume),
		})
	}

	p.log.Debug().Int("instruments", len(instruments)).Msg("Bulk spot fetched")
	return instruments, nil
}

type klineResponse struct {
	Data struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// HistoricalBars fetches daily OHLCV bars for one fund. Raw kline rows are
// comma-joined strings; malformed rows are skipped rather than failing the
// whole response.
func (p *EastMoneyProvider) HistoricalBars(ctx context.Context, code string, start, end time.Time) ([]models.Bar, error) {
	params := url.Values{
		"secid":  {secID(code)},
		"klt":    {"101"}, // daily bars
		"fqt":    {"1"},   // forward adjusted
		"beg":    {start.Format("20060102")},
		"end":    {end.Format("20060102")},
		"fields": {"f51,f52,f53,f54,f55,f56"},
	}

	body, err := p.get(ctx, "kline", code, klineBaseURL, params)
	if err != nil {
		return nil, errors.NewProviderError("kline", code, err)
	}

	var resp klineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewProviderError("kline", code, err)
	}
	if len(resp.Data.Klines) == 0 {
		return nil, errors.NewProviderError("kline", code, errors.ErrEmptyResponse)
	}

	bars := make([]models.Bar, 0, len(resp.Data.Klines))
	for _, line := range resp.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			p.log.Debug().Str("symbol", code).Str("row", line).Msg("Skipping malformed kline row")
			continue
		}
		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, errors.NewProviderError("kline", code, errors.ErrEmptyResponse)
	}
	return bars, nil
}

type quoteResponse struct {
	Data struct {
		Code string `json:"f57"`
		Name string `json:"f58"`
	} `json:"data"`
}

// FundInfo fetches descriptive metadata for one fund. The public quote
// endpoint exposes only the name; remaining fields stay empty.
func (p *EastMoneyProvider) FundInfo(ctx context.Context, code string) (models.InstrumentInfo, error) {
	params := url.Values{
		"secid":  {secID(code)},
		"fields": {"f57,f58"},
	}

	body, err := p.get(ctx, "quote", code, quoteBaseURL, params)
	if err != nil {
		return models.InstrumentInfo{}, errors.NewProviderError("quote", code, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.InstrumentInfo{}, errors.NewProviderError("quote", code, err)
	}
	if resp.Data.Name == "" {
		return models.InstrumentInfo{}, errors.NewProviderError("quote", code, errors.ErrEmptyResponse)
	}

	return models.InstrumentInfo{
		Code:       code,
		Name:       resp.Data.Name,
		Currency:   "CNY",
		LastUpdate: time.Now(),
	}, nil
}

func (p *EastMoneyProvider) get(ctx context.Context, endpoint, code, baseURL string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "etf-tracker/1.0")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		logging.LogFetch(p.log, endpoint, code, time.Since(start), err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		logging.LogFetch(p.log, endpoint, code, time.Since(start), err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	logging.LogFetch(p.log, endpoint, code, time.Since(start), err)
	return body, err
}

// secID maps a fund code to EastMoney's market-prefixed id.
func secID(code string) string {
	if models.MarketForSymbol(code) == models.MarketShanghai {
		return "1." + code
	}
	return "0." + code
}

// parseKline parses "date,open,close,high,low,volume" with typed coercion.
func parseKline(line string) (models.Bar, bool) {
	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return models.Bar{}, false
	}
	date, err := time.Parse("2006-01-02", fields[0])
	if err != nil {
		return models.Bar{}, false
	}
	open, err1 := strconv.ParseFloat(fields[1], 64)
	closePrice, err2 := strconv.ParseFloat(fields[2], 64)
	high, err3 := strconv.ParseFloat(fields[3], 64)
	low, err4 := strconv.ParseFloat(fields[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return models.Bar{}, false
	}
	volume, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		volume = 0
	}
	return models.Bar{
		Date:   date,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, true
}

func scaledFloat(n json.Number, scale float64) float64 {
	f, err := n.Float64()
	if err != nil || scale == 0 {
		return 0
	}
	return f / scale
}

func asInt64(n json.Number) int64 {
	i, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return i
}
