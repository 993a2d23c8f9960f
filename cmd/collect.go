package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fanyang-dev/govpulse/internal/api"
	"github.com/fanyang-dev/govpulse/internal/config"
	"github.com/fanyang-dev/govpulse/internal/fetch"
	"github.com/fanyang-dev/govpulse/internal/govsearch"
	"github.com/fanyang-dev/govpulse/internal/logging"
	"github.com/fanyang-dev/govpulse/internal/runmeta"
	"github.com/fanyang-dev/govpulse/internal/worldbank"
)

const timestampLayout = "2006-01-02T15:04:05-0700"

// newCollectCmd creates and configures the 'collect' subcommand, which runs
// one full collection pass over both sources and writes the run manifest.
func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection pass over both sources",
		Long: `Crawls the gov search endpoint for news items and fetches the configured
World Bank indicators, appending results to per-run artifacts under the
output directory, then writes the run manifest.`,
		RunE: runCollect,
	}

	flags := cmd.Flags()
	flags.String("outdir", "data", "output directory")
	flags.String("logs", "logs", "logs directory")
	flags.String("runs", "runs", "run manifests directory")
	flags.String("metrics-addr", "", "optional listen address for /metrics and /healthz")
	flags.Int("rpm", 12, "requests per minute per host")
	flags.Int("timeout", 15, "HTTP timeout in seconds")
	flags.Int("max-pages", 3, "max pages for the gov search crawl")
	flags.String("query", "金融 五篇 大文章", "search query for sousuo.gov.cn")
	flags.String("start-date", "", "start date YYYY-MM-DD for the gov search filter")
	flags.String("end-date", "", "end date YYYY-MM-DD for the gov search filter")
	flags.String("wb-country", "CHN", "World Bank country ISO3 code")
	flags.String("wb-indicators", "IP.PAT.RESD,EN.ATM.CO2E.PC,SP.POP.65UP.TO.ZS,IT.NET.USER.ZS",
		"comma-separated World Bank indicator codes")
	flags.Int("wb-start-year", 2000, "World Bank start year")
	flags.Int("wb-end-year", time.Now().Year(), "World Bank end year")
	return cmd
}

func runCollect(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx := cmd.Context()
	started := time.Now()
	runID := runmeta.NewRunID(started)
	logger.Info("collection run starting", zap.String("run_id", runID))

	if cfg.MetricsAddr != "" {
		srv := api.New(cfg.MetricsAddr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	window, err := parseWindow(cfg.Search.StartDate, cfg.Search.EndDate)
	if err != nil {
		return err
	}

	requestsLogPath := filepath.Join(cfg.LogsDir, fmt.Sprintf("requests_%s.csv", runID))
	requestLog, err := fetch.NewCSVRequestLog(requestsLogPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := requestLog.Close(); err != nil {
			logger.Warn("close request log", zap.Error(err))
		}
	}()

	client := fetch.New(fetch.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
		Timeout:           cfg.HTTP.Timeout(),
		MaxRetries:        cfg.HTTP.MaxRetries,
		BackoffInitial:    cfg.HTTP.BackoffInitial(),
		BackoffMax:        cfg.HTTP.BackoffMax(),
	}, requestLog, logger)

	// Source 1: gov search.
	newsPath := filepath.Join(cfg.OutDir, "news", fmt.Sprintf("gov_search_%s.jsonl", runID))
	seenPath := filepath.Join(cfg.OutDir, "news", ".seen_urls.txt")
	govItems := collectGovSearch(ctx, client, cfg, window, runID, newsPath, seenPath, logger)

	// Source 2: World Bank indicators.
	wbPath := filepath.Join(cfg.OutDir, "wb", fmt.Sprintf("worldbank_%s.csv", runID))
	wbRows, wbErrs := collectWorldBank(ctx, client, cfg, wbPath, logger)

	manifest := runmeta.Manifest{
		RunID:      runID,
		StartedAt:  started.Format(timestampLayout),
		FinishedAt: time.Now().Format(timestampLayout),
		Params:     manifestParams(cfg),
		Outputs: runmeta.Outputs{
			GovNews:     newsPath,
			WorldBank:   wbPath,
			RequestsLog: requestsLogPath,
		},
		Counts: runmeta.Counts{
			GovItems: govItems,
			WBRows:   wbRows,
			WBErrors: wbErrs,
		},
	}
	manifestPath, err := manifest.Write(cfg.RunsDir)
	if err != nil {
		// The manifest is the sole index for this run's outputs; failing
		// to write it is the one run-fatal persistence error.
		return err
	}
	logger.Info("collection run finished",
		zap.String("manifest", manifestPath),
		zap.Int("gov_items", govItems),
		zap.Int("wb_rows", wbRows),
		zap.Int("wb_errors", len(wbErrs)))
	return nil
}

func collectGovSearch(
	ctx context.Context,
	client *fetch.Client,
	cfg config.Config,
	window govsearch.Window,
	runID, newsPath, seenPath string,
	logger *zap.Logger,
) int {
	sink, err := govsearch.OpenSink(newsPath)
	if err != nil {
		logger.Error("open news stream", zap.Error(err))
		return 0
	}
	seen, err := govsearch.LoadSeenSet(seenPath)
	if err != nil {
		logger.Warn("seen-file unreadable; starting with empty set", zap.Error(err))
	}

	crawler := govsearch.New(client, govsearch.Config{
		BaseURL:  cfg.Search.BaseURL,
		Source:   cfg.Search.Source,
		PageSize: cfg.Search.PageSize,
		RunID:    runID,
	}, logger)
	total, err := crawler.Run(ctx, cfg.Search.Query, window, cfg.Search.MaxPages, seen, sink)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gov search crawl aborted", zap.Error(err))
	}
	if err := sink.Close(); err != nil {
		logger.Warn("close news stream", zap.Error(err))
	}
	// Already-appended records are durable even when this rewrite fails:
	// at-least-once append, best-effort dedup.
	if err := seen.Rewrite(seenPath); err != nil {
		logger.Error("persist seen set", zap.Error(err))
	}
	logger.Info("gov search done", zap.Int("items", total), zap.String("path", newsPath))
	return total
}

func collectWorldBank(
	ctx context.Context,
	client *fetch.Client,
	cfg config.Config,
	wbPath string,
	logger *zap.Logger,
) (int, []worldbank.IndicatorError) {
	if err := os.MkdirAll(filepath.Dir(wbPath), 0o750); err != nil {
		logger.Error("create wb output dir", zap.Error(err))
		return 0, nil
	}
	f, err := os.Create(wbPath)
	if err != nil {
		logger.Error("create wb output", zap.Error(err))
		return 0, nil
	}

	collector := worldbank.New(client, cfg.WorldBank.BaseURL, logger)
	rows, indicatorErrs, err := collector.Collect(
		ctx,
		cfg.WorldBank.Country,
		cfg.WorldBank.Codes(),
		cfg.WorldBank.StartYear,
		cfg.WorldBank.EndYear,
		f,
	)
	if err != nil {
		logger.Error("worldbank collection aborted", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		logger.Warn("close wb output", zap.Error(err))
	}
	logger.Info("worldbank done",
		zap.Int("rows", rows),
		zap.Int("errors", len(indicatorErrs)),
		zap.String("path", wbPath))
	return rows, indicatorErrs
}

func parseWindow(startDate, endDate string) (govsearch.Window, error) {
	var w govsearch.Window
	if startDate != "" {
		t, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return w, fmt.Errorf("parse start date %q: %w", startDate, err)
		}
		w.Start, w.HasStart = t, true
	}
	if endDate != "" {
		t, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return w, fmt.Errorf("parse end date %q: %w", endDate, err)
		}
		w.End, w.HasEnd = t, true
	}
	return w, nil
}

func manifestParams(cfg config.Config) map[string]any {
	return map[string]any{
		"outdir":        cfg.OutDir,
		"logs":          cfg.LogsDir,
		"rpm":           cfg.HTTP.RequestsPerMinute,
		"timeout":       cfg.HTTP.TimeoutSeconds,
		"max_pages":     cfg.Search.MaxPages,
		"query":         cfg.Search.Query,
		"start_date":    cfg.Search.StartDate,
		"end_date":      cfg.Search.EndDate,
		"wb_country":    cfg.WorldBank.Country,
		"wb_indicators": cfg.WorldBank.Indicators,
		"wb_start_year": cfg.WorldBank.StartYear,
		"wb_end_year":   cfg.WorldBank.EndYear,
	}
}
