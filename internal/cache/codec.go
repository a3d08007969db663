package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"etf-tracker/internal/models"
)

const barDateLayout = "2006-01-02 15:04:05"

// csvTime serializes bar timestamps in a fixed layout gocsv can round-trip.
type csvTime struct {
	time.Time
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.Format(barDateLayout), nil
}

func (t *csvTime) UnmarshalCSV(s string) error {
	parsed, err := time.Parse(barDateLayout, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// barRecord is the canonical columnar schema for persisted series. Column
// names are fixed here regardless of what the provider called them.
type barRecord struct {
	Date   csvTime `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// writeJSONAtomic writes v as JSON via a temp file and rename, so a
// concurrent reader never observes a half-written entry.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return replaceFile(path, data)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeSeriesAtomic writes a series as a CSV table via temp file and rename.
func writeSeriesAtomic(path string, series models.Series) error {
	records := make([]barRecord, len(series.Bars))
	for i, b := range series.Bars {
		records[i] = barRecord{
			Date:   csvTime{b.Date},
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	data, err := gocsv.MarshalBytes(&records)
	if err != nil {
		return fmt.Errorf("encoding series %s: %w", filepath.Base(path), err)
	}
	return replaceFile(path, data)
}

func readSeries(path, code, period string) (models.Series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Series{}, err
	}
	var records []barRecord
	if err := gocsv.UnmarshalBytes(data, &records); err != nil {
		return models.Series{}, fmt.Errorf("decoding series %s: %w", filepath.Base(path), err)
	}
	bars := make([]models.Bar, len(records))
	for i, r := range records {
		bars[i] = models.Bar{
			Date:   r.Date.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	series := models.NewSeries(code, period, bars)
	if !series.Validate() {
		return models.Series{}, fmt.Errorf("series %s: bar dates not strictly increasing", filepath.Base(path))
	}
	return series, nil
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
