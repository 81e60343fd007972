package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v4"
	"github.com/spf13/cobra"
	"github.com/ymakhloufi/zins-compare/internal/app/crawler"
	"github.com/ymakhloufi/zins-compare/internal/pkg/config"
	"github.com/ymakhloufi/zins-compare/internal/pkg/fetch"
	"github.com/ymakhloufi/zins-compare/internal/pkg/store"
	"go.uber.org/zap"
)

// renderWaitFor is visible once the KfW page has filled in its rate spans.
const renderWaitFor = `span[data-interest-rate-type="sollzins"]`

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if outFlag != "" {
		cfg.OutputPath = outFlag
	}
	if cmd.Flags().Changed("render") {
		cfg.KfW.Render = renderFlag
	}

	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	httpFetcher := fetch.NewHTTP(cfg.HTTPTimeout, cfg.UserAgent, logger.Named("HTTP Fetcher"))

	var kfwFetcher crawler.Fetcher = httpFetcher
	switch {
	case kfwHTMLFlag != "":
		kfwFetcher = fetch.NewFile(kfwHTMLFlag, logger.Named("KfW File"))
	case cfg.KfW.Render:
		kfwFetcher = fetch.NewBrowser(cfg.RenderTimeout, cfg.UserAgent, renderWaitFor, logger.Named("Browser"))
	}

	var interhypFetcher crawler.Fetcher = httpFetcher
	if interhypHTMLFlag != "" {
		interhypFetcher = fetch.NewFile(interhypHTMLFlag, logger.Named("Interhyp File"))
	}

	fileStore := store.NewFile(cfg.OutputPath, logger.Named("File Store"))
	stores := []crawler.Store{fileStore}

	if cfg.DatabaseURL != "" {
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer func() { _ = conn.Close(context.Background()) }()

		pgStore := store.NewPostgres(conn, logger.Named("PG Store"))
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		stores = append(stores, pgStore)
	}
	stores = append(stores, store.NewConsole(os.Stdout))

	kfwCrawler := crawler.NewKfWCrawler(kfwFetcher, cfg.KfW, logger.Named("KfWCrawler"))
	if cfg.KfW.APIURL != "" && kfwHTMLFlag == "" {
		kfwCrawler.WithAPI(crawler.NewKfWAPISource(httpFetcher, cfg.KfW.APIURL, cfg.KfW.ProgramNumber, logger.Named("KfW API")))
	}

	svc := crawler.NewService(
		kfwCrawler,
		crawler.NewInterhypCrawler(interhypFetcher, cfg.Interhyp, logger.Named("InterhypCrawler")),
		fileStore,
		stores,
		logger.Named("Crawler Svc"),
	)

	_, err = svc.Crawl(ctx)
	return err
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
