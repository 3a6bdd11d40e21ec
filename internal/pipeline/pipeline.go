package pipeline

import (
	"context"
	"errors"
	"fmt"

	"CryptoAnalysis/internal/collector"
	"CryptoAnalysis/internal/merger"
	"CryptoAnalysis/internal/model"
	"CryptoAnalysis/internal/recorder"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AssetJob is everything needed to build the merged dataset of one asset.
// ReturnsFile is optional; when set, the price history with a Returns column
// is written there as well.
type AssetJob struct {
	Asset       string
	PriceFile   string
	OutputFile  string
	ReturnsFile string
	Groups      []collector.MetricGroup
}

// Report summarizes one finished job.
type Report struct {
	Asset   string
	Output  string
	Returns string
	Fetched int
	Failed  int
	Rows    int
}

// Pipeline fetches metrics, merges them with local prices and records
// the run history.
type Pipeline struct {
	Collector *collector.Collector
	Merger    *merger.Merger
	Recorder  recorder.Recorder
	logger    zerolog.Logger
}

// New creates a new Pipeline. A nil recorder records nothing.
func New(col *collector.Collector, m *merger.Merger, rec recorder.Recorder) *Pipeline {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Pipeline{
		Collector: col,
		Merger:    m,
		Recorder:  rec,
		logger:    log.With().Str("component", "pipeline").Logger(),
	}
}

// RunAsset collects every metric group of job, merges the successful tables
// with the price artifact and writes the result to job.OutputFile. Failed
// metric groups are skipped; a bad price artifact, a hard fetch error or a
// write failure is returned.
func (p *Pipeline) RunAsset(ctx context.Context, job AssetJob) (*model.MergedAssetTable, *Report, error) {
	results, err := p.Collect(ctx, job)
	if err != nil {
		return nil, nil, err
	}
	return p.MergeAsset(job, results)
}

// RunAll fetches the metric groups of every job first and merges second, so
// every reachable artifact is written before a bad price file stops the run.
// It stops at the first fatal error; reports of the jobs merged before it
// are returned.
func (p *Pipeline) RunAll(ctx context.Context, jobs []AssetJob) ([]*Report, error) {
	collected := make([][]collector.Result, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := p.Collect(ctx, job)
		if err != nil {
			return nil, err
		}
		collected[i] = results
	}

	reports := make([]*Report, 0, len(jobs))
	for i, job := range jobs {
		_, rep, err := p.MergeAsset(job, collected[i])
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// Collect fetches every metric group of job and records one fetch event per
// group. Only a hard fetch error is returned.
func (p *Pipeline) Collect(ctx context.Context, job AssetJob) ([]collector.Result, error) {
	p.logger.Info().Str("asset", job.Asset).Int("groups", len(job.Groups)).Msg("collecting metrics")

	results, err := p.Collector.Collect(ctx, job.Asset, job.Groups)
	for _, r := range results {
		p.recordFetch(r)
	}
	if err != nil {
		p.record(p.Recorder.RecordFetch(&recorder.FetchEvent{
			Asset:   job.Asset,
			Source:  p.Collector.Fetcher.Name(),
			Outcome: recorder.OutcomeError,
			Error:   err.Error(),
		}))
		return nil, err
	}
	return results, nil
}

// MergeAsset merges the successful results with the price artifact of job,
// saves the merged dataset and, when configured, the returns dataset.
func (p *Pipeline) MergeAsset(job AssetJob, results []collector.Result) (*model.MergedAssetTable, *Report, error) {
	l := p.logger.With().Str("asset", job.Asset).Logger()

	tables := collector.Tables(results)
	rep := &Report{
		Asset:   job.Asset,
		Output:  job.OutputFile,
		Fetched: len(tables),
		Failed:  len(results) - len(tables),
	}
	if rep.Failed > 0 {
		l.Warn().Int("failed", rep.Failed).Int("fetched", rep.Fetched).Msg("merging without failed metric groups")
	}

	prices, err := p.Merger.LoadPrices(job.PriceFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", job.Asset, err)
	}
	merged, err := p.Merger.Combine(job.Asset, prices, tables)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", job.Asset, err)
	}
	if err := p.Merger.Save(job.OutputFile, merged); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", job.Asset, err)
	}
	rep.Rows = merged.Len()

	if job.ReturnsFile != "" {
		returns, err := p.Merger.Returns(job.Asset, prices)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", job.Asset, err)
		}
		if err := p.Merger.SaveReturns(job.ReturnsFile, returns); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", job.Asset, err)
		}
		rep.Returns = job.ReturnsFile
	}

	p.record(p.Recorder.RecordMerge(&recorder.MergeEvent{
		Asset:      job.Asset,
		PriceFile:  job.PriceFile,
		OutputFile: job.OutputFile,
		Tables:     rep.Fetched,
		Failed:     rep.Failed,
		PriceRows:  prices.Len(),
		Rows:       rep.Rows,
	}))
	l.Info().Str("output", job.OutputFile).Int("rows", rep.Rows).Msg("merged dataset saved")
	return merged, rep, nil
}

func (p *Pipeline) recordFetch(r collector.Result) {
	evt := &recorder.FetchEvent{
		Asset:    r.Request.Asset,
		Metrics:  r.Request.Metrics,
		Source:   p.Collector.Fetcher.Name(),
		Artifact: r.Request.Destination,
	}
	if r.OK() {
		evt.Outcome = recorder.OutcomeOK
		evt.Rows = r.Table.Len()
	} else {
		evt.Outcome = recorder.OutcomeSoftFailure
		evt.Error = r.Err.Error()
		var fe *collector.FetchError
		if errors.As(r.Err, &fe) {
			evt.Reason = fe.Reason.String()
			evt.Attempts = fe.Attempts
		}
	}
	p.record(p.Recorder.RecordFetch(evt))
}

func (p *Pipeline) record(err error) {
	if err != nil {
		p.logger.Error().Err(err).Msg("record run history")
	}
}
