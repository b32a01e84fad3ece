// Command dataloader loads every CSV file under a base directory into the
// table it is named after. Files in the updateable group may update rows
// whose primary key already exists; all others only insert.
//
// main stays tiny: flags and environment are bound by newRootCmd, side
// effects live behind Deps, and run returns the process exit code so tests
// can drive it end to end against fakes.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dataloader/internal/config"
	"dataloader/internal/convert"
	"dataloader/internal/datasource"
	"dataloader/internal/datasource/file"
	"dataloader/internal/loader"
	"dataloader/internal/logging"
	"dataloader/internal/metrics"
	"dataloader/internal/metrics/datadog"
	"dataloader/internal/metrics/prompush"
	"dataloader/internal/parser/csv"
	"dataloader/internal/report"
	"dataloader/internal/storage"
	_ "dataloader/internal/storage/all"
)

// Deps holds the boundaries run crosses. Tests replace them with fakes.
type Deps struct {
	Open       func(ctx context.Context, kind, dsn string) (*sql.DB, storage.Dialect, error)
	Discover   func(baseDir string, opt file.Options) ([]datasource.Job, error)
	NewLogger  func(w io.Writer, level, format string) (*zap.SugaredLogger, error)
	NewMetrics func(cfg *config.Config) (metrics.Backend, error)
	Kinds      func() []string

	Stdout io.Writer
	Stderr io.Writer
}

func defaultDeps() Deps {
	return Deps{
		Open:       storage.Open,
		Discover:   file.Discover,
		NewLogger:  logging.New,
		NewMetrics: newMetricsBackend,
		Kinds:      storage.Kinds,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// newMetricsBackend returns the configured backend, or nil for none.
func newMetricsBackend(cfg *config.Config) (metrics.Backend, error) {
	switch cfg.MetricsBackend {
	case "pushgateway":
		if cfg.PushgatewayURL == "" {
			return nil, nil
		}
		return prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
	case "datadog":
		return datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			Namespace:  "dataloader.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
	default:
		return nil, nil
	}
}

// run performs one load and returns the exit code.
func run(ctx context.Context, cfg *config.Config, deps Deps) int {
	out := deps.Stdout
	fmt.Fprintln(out, "Database Data Loader")
	fmt.Fprintln(out)

	issues := config.Validate(*cfg, deps.Kinds())
	for _, is := range issues {
		fmt.Fprintln(deps.Stderr, is.Error())
	}
	if config.HasErrors(issues) {
		return int(loader.ExitConfig)
	}

	log, err := deps.NewLogger(deps.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "logger: %v\n", err)
		return int(loader.ExitConfig)
	}
	defer func() { _ = log.Sync() }()

	if abs, err := filepath.Abs(cfg.BaseDir); err == nil {
		fmt.Fprintf(out, "Data files directory: %s\n", abs)
	}
	fmt.Fprintf(out, "Connection: %s\n", storage.RedactDSN(cfg.Connection))
	if cfg.ConfigFile != "" {
		log.Infow("config: file applied", "path", cfg.ConfigFile)
	}

	if b, err := deps.NewMetrics(cfg); err != nil {
		log.Warnw("metrics: backend disabled", "backend", cfg.MetricsBackend, "error", err)
	} else if b != nil {
		metrics.SetBackend(b)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Warnw("metrics: flush failed", "error", err)
			}
		}()
	}

	code := load(ctx, cfg, deps, log)
	fmt.Fprintln(out, "Data Load Complete")
	return int(code)
}

func load(ctx context.Context, cfg *config.Config, deps Deps, log *zap.SugaredLogger) loader.ExitCode {
	jobs, err := deps.Discover(cfg.BaseDir, file.Options{UpdateableDir: cfg.UpdateableDir, Extension: cfg.Extension})
	if err != nil {
		log.Errorw("discover input files", "baseDir", cfg.BaseDir, "error", err)
		return loader.ExitConfig
	}
	log.Infow("discovered input files", "files", len(jobs))

	db, dialect, err := deps.Open(ctx, cfg.Driver, cfg.Connection)
	if err != nil {
		log.Errorw("connect", "driver", cfg.Driver, "error", err)
		return loader.ExitConfig
	}
	defer db.Close()

	// One session for the whole run; identity insert is session scoped.
	conn, err := db.Conn(ctx)
	if err != nil {
		log.Errorw("acquire connection", "error", err)
		return loader.ExitConfig
	}
	defer conn.Close()

	l := loader.New(dialect, convert.NewService(nil), log, loader.Options{
		Job:        cfg.Job,
		CSV:        csv.Options{Comma: cfg.CommaRune()},
		RejectsDir: cfg.RejectsDir,
	})
	results, code := l.Run(ctx, conn, jobs)
	report.Write(deps.Stdout, results)
	return code
}

type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func newRootCmd(deps Deps, getenv func(string) string) *cobra.Command {
	var cfg *config.Config
	cmd := &cobra.Command{
		Use:           "dataloader --connection <dsn> --baseDir <dir>",
		Short:         "Load CSV files into the database tables they are named after",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Resolve(cfg, cmd.Flags(), getenv); err != nil {
				fmt.Fprintln(deps.Stderr, err)
				return exitCodeError(loader.ExitConfig)
			}
			if code := run(cmd.Context(), cfg, deps); code != 0 {
				return exitCodeError(code)
			}
			return nil
		},
	}
	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)
	cfg = config.Bind(cmd.Flags(), getenv)
	return cmd
}

// exitCode maps the command's error to the process status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCodeError
	if errors.As(err, &ec) {
		return int(ec)
	}
	return int(loader.ExitConfig)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	deps := defaultDeps()
	err := newRootCmd(deps, os.Getenv).ExecuteContext(ctx)
	stop()
	var ec exitCodeError
	if err != nil && !errors.As(err, &ec) {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}
