package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/ndc-unii/config"
	"github.com/giygas/ndc-unii/data"
	"github.com/giygas/ndc-unii/interfaces"
	"github.com/giygas/ndc-unii/logging"
	"github.com/giygas/ndc-unii/pipeline"
	"github.com/giygas/ndc-unii/scheduler"
	"github.com/giygas/ndc-unii/server"
	"github.com/spf13/cobra"
)

// options holds the command line overrides of the environment configuration
type options struct {
	rrfDir       string
	output       string
	webDataDir   string
	port         string
	bucketSize   int
	skipDownload bool
	verbose      bool
	noWeb        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ndc-unii",
		Short: "Map NDC package codes to UNII ingredient codes from an RxNorm release",
		Long: "Without a subcommand, resolves the RxNorm release into the NDC to UNII mapping,\n" +
			"writes the bucketed chunks for the viewer and serves them.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer logging.Close()

			report, err := pipeline.New(cfg).Run(cmd.Context())
			if err != nil {
				return err
			}
			if opts.noWeb {
				return nil
			}
			return serve(cmd.Context(), cfg, report)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.rrfDir, "rrf-dir", "", "Directory holding RXNCONSO.RRF, RXNREL.RRF and RXNSAT.RRF")
	flags.StringVar(&opts.output, "output", "", "Path of the NDC to UNII mapping file")
	flags.StringVar(&opts.webDataDir, "web-data-dir", "", "Directory the bucket, index and search files are written to")
	flags.StringVar(&opts.port, "port", "", "Port of the viewer server")
	flags.IntVar(&opts.bucketSize, "bucket-size", 0, "Number of leading NDC digits per bucket")
	flags.BoolVar(&opts.skipDownload, "skip-download", false, "Fail instead of downloading a missing release")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose console logging")
	rootCmd.Flags().BoolVar(&opts.noWeb, "no-web", false, "Stop after writing the chunks")

	rootCmd.AddCommand(buildCmd(opts))
	rootCmd.AddCommand(chunkCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))

	return rootCmd
}

func buildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Resolve the release and write the NDC to UNII mapping file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer logging.Close()

			start := time.Now()
			resolution, err := pipeline.New(cfg).Resolve(cmd.Context())
			if err != nil {
				return err
			}

			pipeline.LogSummary(&interfaces.RunReport{
				RunID:      "build",
				StartedAt:  start,
				Duration:   time.Since(start),
				OutputPath: cfg.OutputPath,
				Summary:    resolution.Result.Summary,
				Warnings:   len(resolution.Result.Warnings),
				Quality:    resolution.Quality,
			}, resolution.Result.Warnings)
			return nil
		},
	}
}

func chunkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk",
		Short: "Split the mapping file into NDC buckets and a search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer logging.Close()

			result, err := pipeline.New(cfg).Chunk()
			if err != nil {
				return err
			}

			logging.Info("Chunks written",
				"dir", cfg.WebDataDir,
				"records", result.Records,
				"buckets", len(result.Index.Buckets),
				"removed", len(result.Removed))
			return nil
		},
	}
}

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chunks and rebuild them on the refresh schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer logging.Close()

			return serve(cmd.Context(), cfg, nil)
		},
	}
}

// setup loads the configuration, applies the flags and installs the logger
func setup(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, opts, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	logging.InitFromConfig(cfg, opts.verbose)
	return cfg, nil
}

// applyFlags overrides the configuration with the flags set on the command line
func applyFlags(cmd *cobra.Command, opts *options, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("rrf-dir") {
		cfg.RRFDir = opts.rrfDir
	}
	if flags.Changed("output") {
		cfg.OutputPath = opts.output
	}
	if flags.Changed("web-data-dir") {
		cfg.WebDataDir = opts.webDataDir
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("bucket-size") {
		cfg.BucketSize = opts.bucketSize
	}
	if flags.Changed("skip-download") {
		cfg.SkipDownload = opts.skipDownload
	}
}

// serve loads or builds the chunks, schedules the rebuilds and runs the
// server until ctx is cancelled
func serve(ctx context.Context, cfg *config.Config, report *interfaces.RunReport) error {
	dataContainer := data.NewDataContainer()

	sched := scheduler.NewScheduler(dataContainer, pipeline.New(cfg), cfg.RefreshCron)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// The chunks were just built by this process, keep its report
	if report != nil {
		dataContainer.UpdateData(dataContainer.GetDataset(), report)
	}

	srv := server.NewServer(cfg, dataContainer)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed on port %s: %w", cfg.Port, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
