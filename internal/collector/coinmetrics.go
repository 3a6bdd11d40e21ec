package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"CryptoAnalysis/internal/dataset"
	"CryptoAnalysis/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL  = "https://community-api.coinmetrics.io/v4/timeseries/asset-metrics"
	DefaultPageSize = 10000
	DefaultFormat   = "json"

	// timeField is renamed to model.DateColumn.
	timeField = "time"
)

// RetryPolicy bounds how hard a single Fetch tries.
type RetryPolicy struct {
	// MaxAttempts is the total number of requests, including the first.
	MaxAttempts int
	// Delay is the fixed wait between two attempts.
	Delay time.Duration
	// Throttle is the pause taken after every call before returning.
	Throttle time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 2s apart, and a 1s throttle.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second, Throttle: time.Second}
}

// CoinMetricsFetcher implements Fetcher against the Coin Metrics asset-metrics
// timeseries endpoint.
type CoinMetricsFetcher struct {
	BaseURL   string
	APIKey    string
	PageSize  int
	Format    string
	Precision int
	Retry     RetryPolicy
	Client    *http.Client

	// Timer paces retries. Nil uses a real timer.
	Timer backoff.Timer
	// Sleep implements the post-call throttle.
	Sleep func(time.Duration)

	logger zerolog.Logger
}

// NewCoinMetricsFetcher creates a fetcher with optional proxy support. An
// empty baseURL selects the community endpoint.
func NewCoinMetricsFetcher(baseURL, apiKey, proxyURL string, retry RetryPolicy) *CoinMetricsFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CoinMetricsFetcher{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		PageSize:  DefaultPageSize,
		Format:    DefaultFormat,
		Precision: dataset.DefaultPrecision,
		Retry:     retry,
		Client:    &http.Client{Transport: transport},
		Sleep:     time.Sleep,
		logger:    log.With().Str("component", "coinmetrics").Logger(),
	}
}

func (f *CoinMetricsFetcher) Name() string { return "coinmetrics" }

// Fetch requests req's metrics, saves the table to req.Destination and
// returns it. Failures of the remote side are returned as *FetchError; a
// bad request or a failed save is returned as a plain error.
func (f *CoinMetricsFetcher) Fetch(ctx context.Context, req model.TimeSeriesRequest) (*model.TimeSeriesTable, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Destination == "" {
		return nil, errors.New("invalid request: destination is required")
	}
	endpoint, err := f.endpoint(req)
	if err != nil {
		return nil, err
	}
	defer f.throttle()

	f.logger.Info().
		Str("asset", req.Asset).
		Strs("metrics", req.Metrics).
		Str("start", req.Start.String()).
		Str("end", req.End.String()).
		Msg("requesting metrics")

	body, attempts, err := f.get(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}

	table, err := decodeMetrics(body)
	if err != nil {
		fe := &FetchError{Asset: req.Asset, Metrics: req.Metrics, Reason: ReasonMalformedResponse, Attempts: attempts, Err: err}
		f.logger.Warn().Err(err).Str("asset", req.Asset).Strs("metrics", req.Metrics).Msg("no usable data in response")
		return nil, fe
	}

	if err := dataset.WriteCSV(req.Destination, table, f.Precision); err != nil {
		return nil, fmt.Errorf("save %s: %w", req.Destination, err)
	}
	f.logger.Info().Str("path", req.Destination).Int("rows", table.Len()).Msg("saved")

	return &model.TimeSeriesTable{Request: req, Table: table}, nil
}

func (f *CoinMetricsFetcher) endpoint(req model.TimeSeriesRequest) (string, error) {
	u, err := url.Parse(f.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	format := f.Format
	if format == "" {
		format = DefaultFormat
	}
	q := u.Query()
	q.Set("assets", req.Asset)
	q.Set("metrics", strings.Join(req.Metrics, ","))
	q.Set("start_time", req.Start.String())
	q.Set("end_time", req.End.String())
	q.Set("frequency", req.Frequency)
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("format", format)
	if f.APIKey != "" {
		q.Set("api_key", f.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// get performs the GET with the retry policy and returns the 200 body and
// the number of attempts made.
func (f *CoinMetricsFetcher) get(ctx context.Context, endpoint string, req model.TimeSeriesRequest) ([]byte, int, error) {
	maxAttempts := f.Retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	operation := func() ([]byte, error) {
		attempts++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := f.Client.Do(httpReq)
		if err != nil {
			return nil, &transportError{Err: err}
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, &statusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
		}
		if err != nil {
			return nil, &transportError{Err: fmt.Errorf("read body: %w", err)}
		}
		return body, nil
	}
	notify := func(err error, wait time.Duration) {
		f.logger.Warn().Err(err).
			Str("asset", req.Asset).
			Strs("metrics", req.Metrics).
			Dur("wait", wait).
			Msgf("retry %d/%d", attempts, maxAttempts)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.Retry.Delay), uint64(maxAttempts-1)),
		ctx,
	)
	body, err := backoff.RetryNotifyWithTimerAndData(operation, b, notify, f.Timer)
	if err == nil {
		return body, attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, attempts, ctxErr
	}
	var (
		se *statusError
		te *transportError
	)
	if !errors.As(err, &se) && !errors.As(err, &te) {
		return nil, attempts, err
	}

	f.logger.Warn().Err(err).
		Str("asset", req.Asset).
		Strs("metrics", req.Metrics).
		Msgf("failed after %d attempts", attempts)
	return nil, attempts, &FetchError{
		Asset:    req.Asset,
		Metrics:  req.Metrics,
		Reason:   ReasonRetriesExhausted,
		Attempts: attempts,
		Err:      err,
	}
}

func (f *CoinMetricsFetcher) throttle() {
	if f.Retry.Throttle <= 0 {
		return
	}
	sleep := f.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(f.Retry.Throttle)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var errNoData = errors.New("response has no data field")

// decodeMetrics turns a {"data": [...]} body into a table. Record keys become
// columns in first-seen order; the time field becomes the date key. Every
// value is kept as text and JSON null becomes missing.
func decodeMetrics(body []byte) (*model.Table, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	raw, ok := envelope["data"]
	if !ok {
		return nil, errNoData
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil || records == nil {
		return nil, fmt.Errorf("data field is not a list")
	}

	var (
		names []string
		index = make(map[string]int)
		rows  = make([]map[string]null.String, 0, len(records))
		dates = make([]model.Date, 0, len(records))
	)
	for i, rec := range records {
		fields, order, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ts, ok := fields[timeField]
		if !ok || !ts.Valid {
			return nil, fmt.Errorf("record %d: no %s field", i, timeField)
		}
		d, err := model.NormalizeDate(ts.String)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for _, k := range order {
			if k == timeField || k == model.DateColumn {
				continue
			}
			if _, seen := index[k]; !seen {
				index[k] = len(names)
				names = append(names, k)
			}
		}
		dates = append(dates, d)
		rows = append(rows, fields)
	}

	t := model.NewTable(dates)
	for _, name := range names {
		c := model.NewTextColumn(name, len(rows))
		for i, fields := range rows {
			c.Text[i] = fields[name]
		}
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// decodeRecord reads one JSON object keeping the order of its keys.
func decodeRecord(raw json.RawMessage) (map[string]null.String, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("not an object")
	}

	fields := make(map[string]null.String)
	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected key %v", tok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := fields[key]; !dup {
			order = append(order, key)
		}
		fields[key] = rawText(val)
	}
	return fields, order, nil
}

func rawText(v json.RawMessage) null.String {
	s := strings.TrimSpace(string(v))
	if s == "null" {
		return null.String{}
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			return null.StringFrom(str)
		}
	}
	return null.StringFrom(s)
}
