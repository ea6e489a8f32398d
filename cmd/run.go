package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicarchive/lexharvest/internal/blobstore/gcs"
	"github.com/civicarchive/lexharvest/internal/blobstore/local"
	blobmemory "github.com/civicarchive/lexharvest/internal/blobstore/memory"
	"github.com/civicarchive/lexharvest/internal/config"
	"github.com/civicarchive/lexharvest/internal/extraction"
	extmemory "github.com/civicarchive/lexharvest/internal/extraction/memory"
	"github.com/civicarchive/lexharvest/internal/fetchcache"
	"github.com/civicarchive/lexharvest/internal/fetcher"
	iduuid "github.com/civicarchive/lexharvest/internal/id/uuid"
	"github.com/civicarchive/lexharvest/internal/logging"
	"github.com/civicarchive/lexharvest/internal/ops"
	"github.com/civicarchive/lexharvest/internal/pipeline"
	pubmemory "github.com/civicarchive/lexharvest/internal/publisher/memory"
	"github.com/civicarchive/lexharvest/internal/publisher/pubsub"
	"github.com/civicarchive/lexharvest/internal/registry"
	regmemory "github.com/civicarchive/lexharvest/internal/registry/memory"
	"github.com/civicarchive/lexharvest/internal/registry/postgres"
	"github.com/civicarchive/lexharvest/internal/runner"
	"github.com/civicarchive/lexharvest/internal/session"
)

// runFlags are the per-extractor arguments every extractor may
// declare; only flags the user set are injected.
var runFlagSpecs = []struct{ name, usage string }{
	{"start-date", "lower bound for harvested publication dates (YYYY-MM-DD)"},
	{"end-date", "upper bound for harvested publication dates (YYYY-MM-DD)"},
	{"year", "legislative year to harvest"},
	{"session", "legislative session identifier"},
	{"search-term", "free-text filter passed to the source's search form"},
}

func newRunCmd() *cobra.Command {
	var skipCache bool

	cmd := &cobra.Command{
		Use:   "run <extractor>",
		Short: "Run one extractor end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			extractor, err := runner.Lookup(posArgs[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			args := pipeline.Args{}
			for _, spec := range runFlagSpecs {
				if cmd.Flags().Changed(spec.name) {
					value, _ := cmd.Flags().GetString(spec.name)
					args[argKey(spec.name)] = value
				}
			}
			if skipCache {
				args["skip_cache"] = strconv.FormatBool(true)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := buildSession(ctx, cfg, extractor.Info().Name, logger)
			if err != nil {
				return err
			}
			defer s.Close() //nolint:errcheck // logged by the components

			if cfg.Ops.Enabled {
				opsSrv := ops.New(ops.Config{Port: cfg.Ops.Port}, logger)
				go func() {
					if serveErr := opsSrv.Start(); serveErr != nil {
						logger.Warn("ops server stopped", zap.Error(serveErr))
					}
				}()
				defer opsSrv.Shutdown(context.Background()) //nolint:errcheck // shutdown is best-effort
			}

			return runner.New(s).Run(ctx, extractor, args)
		},
	}

	for _, spec := range runFlagSpecs {
		cmd.Flags().String(spec.name, "", spec.usage)
	}
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "always refetch, ignoring archived copies")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered extractors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range runner.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// argKey converts a flag name into the snake_case key extractors see.
func argKey(flag string) string {
	out := []byte(flag)
	for i, c := range out {
		if c == '-' {
			out[i] = '_'
		}
	}
	return string(out)
}

// buildSession assembles the shared clients from config. Backends not
// configured fall back to in-memory stand-ins so dry runs need no
// infrastructure.
func buildSession(ctx context.Context, cfg config.Config, extractorName string, logger *zap.Logger) (*session.Session, error) {
	initialBackoff, maxBackoff := cfg.Backoff()
	retry := pipeline.NewRetryPolicy(cfg.HTTP.MaxRetries, initialBackoff, maxBackoff, cfg.HTTPTimeout())

	f := fetcher.New(fetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.HTTPTimeout(),
		MaxBodySize:  cfg.HTTP.MaxBodyBytes,
		RetryCount:   cfg.HTTP.MaxRetries,
		RetryWait:    initialBackoff,
		RetryMaxWait: maxBackoff,
	}, logger)

	var closers []func() error

	var blobs pipeline.BlobStore
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		closers = append(closers, client.Close)
		blobs, err = gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket}, retry)
		if err != nil {
			return nil, err
		}
	case "local":
		var err error
		blobs, err = local.New(local.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, err
		}
	default:
		blobs = blobmemory.NewBlobStore()
	}

	var store registry.Store
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, postgres.Config{DSN: cfg.DB.DSN, MaxConns: int32(cfg.DB.MaxOpenConns)})
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error { pg.Close(); return nil })
		store = pg
	} else {
		store = regmemory.NewStore()
	}

	var engine pipeline.ExtractionEngine
	if cfg.Extraction.Endpoint != "" {
		client, err := extraction.New(extraction.Config{
			Endpoint: cfg.Extraction.Endpoint,
			Timeout:  cfg.ExtractionTimeout(),
		}, retry, logger)
		if err != nil {
			return nil, err
		}
		engine = client
	} else {
		engine = extmemory.NewEngine()
	}

	reg, err := registry.New(registry.Config{
		Store:  store,
		Engine: engine,
		IDs:    iduuid.NewGenerator(),
		Clock:  pipeline.SystemClock{},
		Retry:  retry,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	var pub pipeline.Publisher
	if cfg.PubSub.ProjectID != "" {
		pub, err = pubsub.New(ctx, pubsub.Config{
			ProjectID: cfg.PubSub.ProjectID,
			TopicID:   cfg.PubSub.TopicName,
		}, extractorName, retry, logger)
		if err != nil {
			return nil, err
		}
	} else {
		pub = pubmemory.NewPublisher()
	}

	cache, err := fetchcache.New(fetchcache.Config{
		Fetcher:  f,
		Blobs:    blobs,
		Registry: reg,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return session.New(session.Config{
		Fetcher:   f,
		Cache:     cache,
		Blobs:     blobs,
		Registry:  reg,
		Publisher: pub,
		Clock:     pipeline.SystemClock{},
		Logger:    logger,
		Closers:   closers,
	}), nil
}
