// Package worldbank collects annual indicator series from the World Bank
// v2 API into a tabular artifact, isolating failures per indicator code.
package worldbank

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/fanyang-dev/govpulse/internal/fetch"
	"github.com/fanyang-dev/govpulse/internal/metrics"
)

// DefaultBaseURL is the World Bank API root.
const DefaultBaseURL = "https://api.worldbank.org/v2"

// Fetcher is the slice of the fetch client the collector needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values) fetch.Outcome
}

// Record is one (indicator, period) row.
type Record struct {
	Country       string
	CountryISO3   string
	IndicatorID   string
	IndicatorName string
	Date          string
	Value         *float64
	Unit          string
	Decimal       int
}

// IndicatorError classifies the failure of a single indicator fetch.
type IndicatorError struct {
	Indicator string `json:"indicator"`
	Error     string `json:"error"`
}

// Header is the indicator table's column row.
var Header = []string{"country", "countryiso3code", "indicator_id", "indicator_name", "date", "value", "unit", "decimal"}

// Collector fetches indicator series through the politeness-aware client.
type Collector struct {
	fetcher Fetcher
	baseURL string
	logger  *zap.Logger
}

// New constructs a Collector.
func New(fetcher Fetcher, baseURL string, logger *zap.Logger) *Collector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Collector{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

// apiRow mirrors one entry of the API envelope's row list.
type apiRow struct {
	Indicator struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"indicator"`
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string   `json:"countryiso3code"`
	Date        string   `json:"date"`
	Value       *float64 `json:"value"`
	Decimal     int      `json:"decimal"`
}

// Collect fetches every code independently and writes accepted rows as CSV
// to w, header first. One indicator's failure is recorded in the returned
// error list and never prevents subsequent indicators from being attempted.
func (c *Collector) Collect(ctx context.Context, country string, codes []string, startYear, endYear int, w io.Writer) (int, []IndicatorError, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, nil, fmt.Errorf("write indicator header: %w", err)
	}

	total := 0
	var indicatorErrs []IndicatorError
	for _, code := range codes {
		if ctx.Err() != nil {
			break
		}
		records, errClass := c.fetchIndicator(ctx, country, code, startYear, endYear)
		if errClass != "" {
			indicatorErrs = append(indicatorErrs, IndicatorError{Indicator: code, Error: errClass})
			c.logger.Warn("indicator fetch failed",
				zap.String("indicator", code), zap.String("error", errClass))
			continue
		}
		for _, rec := range records {
			if err := cw.Write(csvRow(rec)); err != nil {
				return total, indicatorErrs, fmt.Errorf("write indicator row: %w", err)
			}
			metrics.ObserveIndicatorRow()
			total++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return total, indicatorErrs, fmt.Errorf("flush indicator table: %w", err)
	}
	return total, indicatorErrs, nil
}

// fetchIndicator returns the rows for one code, or a non-empty error class:
// request_failed, http_<code>, json_error:<detail>, or unexpected_payload.
func (c *Collector) fetchIndicator(ctx context.Context, country, code string, startYear, endYear int) ([]Record, string) {
	params := url.Values{
		"format":   {"json"},
		"per_page": {"20000"},
	}
	if startYear != 0 && endYear != 0 {
		params.Set("date", fmt.Sprintf("%d:%d", startYear, endYear))
	}
	target := fmt.Sprintf("%s/country/%s/indicator/%s", c.baseURL, country, code)

	out := c.fetcher.Get(ctx, target, params)
	if !out.OK() {
		return nil, "request_failed"
	}
	if out.Status != http.StatusOK {
		return nil, fmt.Sprintf("http_%d", out.Status)
	}

	// The API wraps results in a two-element [metadata, rows] envelope;
	// error responses come back as a bare object instead.
	var envelope []json.RawMessage
	if err := json.Unmarshal(out.Body, &envelope); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, "unexpected_payload"
		}
		return nil, "json_error:" + err.Error()
	}
	if len(envelope) < 2 {
		return nil, "unexpected_payload"
	}
	var rows []apiRow
	if err := json.Unmarshal(envelope[1], &rows); err != nil {
		return nil, "unexpected_payload"
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		indicatorID := row.Indicator.ID
		if indicatorID == "" {
			indicatorID = code
		}
		records = append(records, Record{
			Country:       row.Country.Value,
			CountryISO3:   row.CountryISO3,
			IndicatorID:   indicatorID,
			IndicatorName: row.Indicator.Value,
			Date:          row.Date,
			Value:         row.Value,
			Unit:          "", // not provided by the v2 response
			Decimal:       row.Decimal,
		})
	}
	return records, ""
}

func csvRow(r Record) []string {
	value := ""
	if r.Value != nil {
		value = strconv.FormatFloat(*r.Value, 'f', -1, 64)
	}
	return []string{
		r.Country,
		r.CountryISO3,
		r.IndicatorID,
		r.IndicatorName,
		r.Date,
		value,
		r.Unit,
		strconv.Itoa(r.Decimal),
	}
}
