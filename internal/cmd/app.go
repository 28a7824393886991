package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/stagectl/internal/catalog"
	"github.com/Iron-Ham/stagectl/internal/classifier"
	"github.com/Iron-Ham/stagectl/internal/config"
	"github.com/Iron-Ham/stagectl/internal/exclusive"
	"github.com/Iron-Ham/stagectl/internal/ignore"
	"github.com/Iron-Ham/stagectl/internal/logging"
	"github.com/Iron-Ham/stagectl/internal/planner"
	"github.com/Iron-Ham/stagectl/internal/redisconn"
	"github.com/Iron-Ham/stagectl/internal/snapshot"
	"github.com/Iron-Ham/stagectl/internal/staging"
	"github.com/Iron-Ham/stagectl/internal/store"
	"github.com/Iron-Ham/stagectl/internal/validator"
)

// app holds everything one command invocation needs.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.Store
	catalog *catalog.Catalog
	svc     *staging.Service

	closers []func() error
}

// newApp loads configuration and wires the stores, the lock and the
// staging service for cmd. Callers must call close.
func newApp(cmd *cobra.Command) (a *app, err error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.logger, err = logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a.closers = append(a.closers, a.logger.Close)
	logger := a.logger.With("project", cfg.Project).WithCommand(cmd.Name())

	if cfg.Store.Driver == config.DriverSQLite && cfg.Store.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.DSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	a.store, err = store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ignores, err := a.ignoreStore(ctx)
	if err != nil {
		return nil, err
	}
	locker, err := a.locker(ctx, cmd.Name())
	if err != nil {
		return nil, err
	}
	session := exclusive.NewSession(locker, cfg.Project, cfg.Lock.Timeout, logger)

	a.catalog = catalog.New(catalog.Config{
		Project: cfg.Project,
		Backend: a.store,
		Ignores: ignore.NewList(ignores),
		Guard:   session,
		Logger:  logger,
	})
	if wipe, _ := cmd.Flags().GetBool("wipe-cache"); wipe {
		a.catalog.Invalidate()
		logger.Debug("request cache wiped")
	}

	v := validator.New(validator.Config{
		Policy:      cfg.Policy,
		Directory:   a.store,
		Snapshots:   snapshot.NewGitSource(cfg.Snapshots.GitRoot),
		Classifier:  classifier.NewExecClassifier(cfg.Classifier.Command, cfg.Classifier.Timeout, logger),
		WorkDir:     cfg.Classifier.WorkDir,
		Parallelism: cfg.Batch.Parallelism,
		Logger:      logger,
	})

	a.svc = staging.New(staging.Config{
		Catalog:   a.catalog,
		Backend:   a.store,
		Session:   session,
		Validator: v,
		Amender: &planner.EditorAmender{
			Command:      cfg.Editor.Command,
			WaitForWrite: cfg.Editor.WaitForWrite,
			Logger:       logger,
		},
		Confirm:       confirmer(cmd),
		BootstrapRing: cfg.Policy.BootstrapRing,
		Out:           cmd.OutOrStdout(),
		Logger:        logger,
	})
	return a, nil
}

func (a *app) ignoreStore(ctx context.Context) (ignore.Store, error) {
	switch a.cfg.Ignore.Backend {
	case config.BackendRedis:
		client, err := a.redis(ctx, a.cfg.Ignore.RedisURL)
		if err != nil {
			return nil, err
		}
		return ignore.NewRedisStore(client, a.cfg.Project), nil
	case config.BackendDatabase:
		return a.store.Ignores(a.cfg.Project), nil
	default:
		return ignore.NewFileStore(a.cfg.Ignore.File), nil
	}
}

func (a *app) locker(ctx context.Context, command string) (exclusive.Locker, error) {
	if a.cfg.Lock.Backend == config.BackendRedis {
		client, err := a.redis(ctx, a.cfg.Lock.RedisURL)
		if err != nil {
			return nil, err
		}
		return exclusive.NewRedisLocker(client, a.cfg.Project, a.cfg.Lock.TTL, command), nil
	}
	return exclusive.NewFileLocker(a.cfg.Lock.Dir, a.cfg.Project, command), nil
}

func (a *app) redis(ctx context.Context, url string) (*redis.Client, error) {
	client, err := redisconn.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// withApp adapts a command body that needs an app to cobra's RunE.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd, a, args)
	}
}
