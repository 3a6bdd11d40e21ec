package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"CryptoAnalysis/internal/collector"
	"CryptoAnalysis/internal/config"
	"CryptoAnalysis/internal/merger"
	"CryptoAnalysis/internal/pipeline"
	"CryptoAnalysis/internal/recorder"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	window, err := cfg.CollectorWindow()
	if err != nil {
		log.Fatal().Err(err).Msg("config window")
	}

	// Init fetcher
	fetcher := collector.NewCoinMetricsFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy, cfg.RetryPolicy())
	fetcher.PageSize = cfg.DataSource.PageSize
	fetcher.Format = cfg.DataSource.Format
	fetcher.Precision = cfg.Merge.Precision
	fetcher.Client.Timeout = cfg.DataSource.Timeout
	log.Info().Str("source", fetcher.Name()).Str("base_url", fetcher.BaseURL).Msg("data source")

	// Init recorder
	var (
		rec     recorder.Recorder
		history *recorder.SQLiteRecorder
	)
	if cfg.Database.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0755); err != nil {
			log.Warn().Err(err).Msg("create sqlite directory")
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			history = sr
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}
	defer rec.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(
		collector.NewCollector(fetcher, window),
		merger.New(cfg.MergerOptions()),
		rec,
	)

	jobs := make([]pipeline.AssetJob, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		if history != nil {
			logPreviousRun(history, a.Name)
		}
		groups := make([]collector.MetricGroup, len(a.MetricGroups))
		for i, g := range a.MetricGroups {
			groups[i] = collector.MetricGroup{Metrics: g.Metrics, File: g.File}
		}
		jobs = append(jobs, pipeline.AssetJob{
			Asset:       a.Name,
			PriceFile:   a.PriceFile,
			OutputFile:  a.OutputFile,
			ReturnsFile: a.ReturnsFile,
			Groups:      groups,
		})
	}

	reports, err := p.RunAll(ctx, jobs)
	for _, r := range reports {
		log.Info().
			Str("asset", r.Asset).
			Str("output", r.Output).
			Str("returns", r.Returns).
			Int("fetched", r.Fetched).
			Int("failed", r.Failed).
			Int("rows", r.Rows).
			Msg("asset done")
	}
	if err != nil {
		rec.Close()
		log.Fatal().Err(err).Msg("pipeline stopped")
	}
	log.Info().Int("assets", len(reports)).Msg("all datasets written")
}

func logPreviousRun(history *recorder.SQLiteRecorder, asset string) {
	last, err := history.LastMerge(asset)
	if err != nil {
		log.Warn().Err(err).Str("asset", asset).Msg("read run history")
		return
	}
	if last == nil {
		log.Info().Str("asset", asset).Msg("no previous run")
		return
	}
	outcomes, err := history.FetchOutcomes(asset)
	if err != nil {
		log.Warn().Err(err).Str("asset", asset).Msg("read run history")
		return
	}
	log.Info().
		Str("asset", asset).
		Str("output", last.OutputFile).
		Int("rows", last.Rows).
		Int("failed_groups", last.Failed).
		Interface("fetch_outcomes", outcomes).
		Msg("previous run")
}
