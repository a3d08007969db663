package provider

import (
	"context"
	"sync"
	"time"

	"etf-tracker/internal/errors"
	"etf-tracker/internal/models"
)

// StaticProvider implements Provider from an in-memory data set. It backs
// offline/dry-run mode and tests; failures can be injected per endpoint.
type StaticProvider struct {
	mu          sync.Mutex
	instruments []models.Instrument
	bars        map[string][]models.Bar
	infos       map[string]models.InstrumentInfo

	// Injected failures; nil means the endpoint succeeds.
	BulkErr error
	BarsErr error
	InfoErr error

	// Call counters for verifying network behavior in tests.
	BulkCalls int
	BarsCalls int
	InfoCalls int
}

// NewStatic creates an empty static provider.
func NewStatic() *StaticProvider {
	return &StaticProvider{
		bars:  make(map[string][]models.Bar),
		infos: make(map[string]models.InstrumentInfo),
	}
}

// SetInstruments replaces the bulk instrument list.
func (p *StaticProvider) SetInstruments(instruments []models.Instrument) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instruments = instruments
}

// SetBars replaces the historical bars for one fund.
func (p *StaticProvider) SetBars(code string, bars []models.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[code] = bars
}

// SetInfo replaces the metadata for one fund.
func (p *StaticProvider) SetInfo(info models.InstrumentInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos[info.Code] = info
}

// BulkSpot returns the configured instrument list.
func (p *StaticProvider) BulkSpot(ctx context.Context) ([]models.Instrument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BulkCalls++
	if p.BulkErr != nil {
		return nil, p.BulkErr
	}
	out := make([]models.Instrument, len(p.instruments))
	copy(out, p.instruments)
	return out, nil
}

// HistoricalBars returns the configured bars for code within [start, end].
func (p *StaticProvider) HistoricalBars(ctx context.Context, code string, start, end time.Time) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BarsCalls++
	if p.BarsErr != nil {
		return nil, p.BarsErr
	}
	bars, ok := p.bars[code]
	if !ok {
		return nil, errors.NewProviderError("kline", code, errors.ErrDataNotFound)
	}
	var out []models.Bar
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, errors.NewProviderError("kline", code, errors.ErrEmptyResponse)
	}
	return out, nil
}

// FundInfo returns the configured metadata for code.
func (p *StaticProvider) FundInfo(ctx context.Context, code string) (models.InstrumentInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InfoCalls++
	if p.InfoErr != nil {
		return models.InstrumentInfo{}, p.InfoErr
	}
	info, ok := p.infos[code]
	if !ok {
		return models.InstrumentInfo{}, errors.NewProviderError("quote", code, errors.ErrDataNotFound)
	}
	return info, nil
}
