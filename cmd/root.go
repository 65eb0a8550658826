// Package cmd defines the directory-crawler command line.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/api"
	"github.com/JakeFAU/directory-crawler/internal/app"
	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/logging"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
)

const keywordPrompt = "Enter the keyword to search: "

// Runner is the slice of *app.App the command drives. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, keyword string) (app.RunSummary, error)
	Status() any
	Close()
}

// newRunner is the application factory. It is a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type options struct {
	configPath string
	keyword    string
	output     string
	workers    int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "directory-crawler",
		Short: "Search a business directory and export company details.",
		Long: `directory-crawler types a keyword into the directory's search form, walks every
result page, visits each company page concurrently for its website, phone and
address, and writes the table to a CSV or XLSX file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to the YAML settings file")
	cmd.Flags().StringVar(&opts.keyword, "keyword", "", "search keyword (prompted on stdin when empty)")
	cmd.Flags().StringVar(&opts.output, "output", "", "override output.path (.csv or .xlsx)")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "override enrich.concurrency")
	return cmd
}

func run(ctx context.Context, opts *options, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.output != "" {
		cfg.Output.Path = opts.output
	}
	if opts.workers > 0 {
		cfg.Enrich.Concurrency = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	keyword := strings.TrimSpace(opts.keyword)
	if keyword == "" {
		keyword, err = promptKeyword(in, out)
		if err != nil {
			return err
		}
	}
	if keyword == "" {
		return errors.New("a search keyword is required")
	}

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize services: %w", err)
	}
	defer runner.Close()

	if cfg.Metrics.Addr != "" {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		srv := api.NewServer(runner.Status, logger)
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("operator listener error", zap.Error(err))
			}
		}()
	}

	summary, err := runner.Run(ctx, keyword)
	if err != nil {
		fmt.Fprintf(out, "[ERROR] %s\n", err)
		return err
	}
	switch summary.Status {
	case app.StatusSucceeded:
		if summary.OutputPath != "" {
			fmt.Fprintf(out, "[INFO] Results saved to %s\n", summary.OutputPath)
		} else {
			fmt.Fprintf(out, "[ERROR] Failed to save results: %s\n", summary.Error)
		}
	case app.StatusNoResults:
		fmt.Fprintln(out, "[INFO] No results found.")
	default:
		fmt.Fprintf(out, "[INFO] No results found or an error occurred during the search: %s\n", summary.Error)
	}
	return nil
}

func promptKeyword(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, keywordPrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read keyword: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Execute runs the root command with a context canceled by SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "directory-crawler: %v\n", err)
		os.Exit(1)
	}
}
