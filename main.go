package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/muhammadolammi/cvreviewworker/internal/config"
	"github.com/muhammadolammi/cvreviewworker/internal/convert"
	"github.com/muhammadolammi/cvreviewworker/internal/database"
	"github.com/muhammadolammi/cvreviewworker/internal/highlight"
	"github.com/muhammadolammi/cvreviewworker/internal/logger"
	"github.com/muhammadolammi/cvreviewworker/internal/storage"
	"github.com/muhammadolammi/cvreviewworker/internal/worker"
)

const annotationAuthor = "CV Review"

var (
	configPath string
	transport  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "cvreviewworker",
	Short: "Score résumés against a job title and highlight weak passages",
	Long: "cvreviewworker reads one JSON request per line from stdin (or a RabbitMQ queue), " +
		"asks Gemini to score the résumé and writes one JSON response per line.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&transport, "transport", "", "stdio or amqp (overrides TRANSPORT)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			reportStartupFailure(os.Stdout, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// reportStartupFailure writes the single failure line a caller sees when
// the worker cannot start.
func reportStartupFailure(w io.Writer, err error) {
	_ = worker.WriteResponse(w, &worker.Response{OK: false, Error: errors.Cause(err).Error()})
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Worker.Transport = transport
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.CheckCredential(); err != nil {
		return err
	}

	ctx := cmd.Context()
	w, cleanup, err := buildWorker(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	switch cfg.Worker.Transport {
	case "amqp":
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.ServeAMQP(ctx, worker.AMQPConfig{
			URL:          cfg.RabbitMQ.URL,
			Queue:        cfg.RabbitMQ.Queue,
			ResultsQueue: cfg.RabbitMQ.ResultsQueue,
		})
	default:
		logger.Info().Msg("reading requests from stdin")
		return w.Serve(ctx, os.Stdin, os.Stdout)
	}
}

// buildWorker resolves every optional collaborator once.
func buildWorker(ctx context.Context, cfg *config.Config) (*worker.Worker, func(), error) {
	cleanup := func() {}

	oracle, err := newOracle(ctx, cfg.Gemini)
	if err != nil {
		return nil, cleanup, err
	}

	conv, err := convert.New(convert.Options{
		Kind:        cfg.Converter.Kind,
		SofficePath: cfg.Converter.SofficePath,
		FontPath:    cfg.Converter.FontPath,
	})
	if err != nil {
		return nil, cleanup, err
	}

	var annotator highlight.Annotator = highlight.NopAnnotator{}
	if cfg.Worker.Annotate {
		annotator = highlight.NewPDFAnnotator(annotationAuthor)
	}

	wcfg := worker.Config{
		Oracle:     oracle,
		Normalizer: convert.NewNormalizer(conv),
		Annotator:  annotator,
		Timeout:    cfg.Worker.RequestTimeout,
	}

	if cfg.R2.Enabled() {
		r2, err := storage.NewR2(ctx, storage.R2Config{
			AccountID: cfg.R2.AccountID,
			Bucket:    cfg.R2.Bucket,
			AccessKey: cfg.R2.AccessKey,
			SecretKey: cfg.R2.SecretKey,
		})
		if err != nil {
			return nil, cleanup, err
		}
		wcfg.Fetcher = r2
	}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, cleanup, errors.Wrap(err, "open db")
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, cleanup, errors.Wrap(err, "ping db")
		}
		cleanup = func() { db.Close() }
		wcfg.Store = database.New(db)
	}

	w, err := worker.New(wcfg)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	logger.Info().
		Str("backend", cfg.Gemini.Backend).
		Str("model", cfg.Gemini.Model).
		Str("converter", conv.Name()).
		Bool("annotate", cfg.Worker.Annotate).
		Bool("object_store", wcfg.Fetcher != nil).
		Bool("persistence", wcfg.Store != nil).
		Msg("worker ready")
	return w, cleanup, nil
}
