package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fieldaxis/fieldsync/internal/config"
	"github.com/fieldaxis/fieldsync/internal/ledger"
	"github.com/fieldaxis/fieldsync/internal/remote"
	"github.com/fieldaxis/fieldsync/internal/repo"
	"github.com/fieldaxis/fieldsync/internal/store"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync engine for FieldAxis field sales data",
	Long: `fieldsync maintains a local SQLite cache of leads, customers, and
quotations for the FieldAxis mobile companion, synchronized from the
FieldAxis CRM API.

Remote data wins conflicts by timestamp: a fetched record replaces the
local row only when its updated_at is strictly newer. Records edited on
the device are queued as pending until the next push.

Configuration is read from the file given with --config, with
environment overrides under the FIELDSYNC_ prefix.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger builds the process logger. With logging.file set, output
// goes to a size-rotated file; otherwise stderr.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	return zap.New(core), nil
}

// engine bundles the wired sync components for the CLI commands.
type engine struct {
	db     *store.DB
	ledger *ledger.Ledger
	orch   *syncer.Orchestrator
	logger *zap.Logger
	cfg    *config.Config
}

func (e *engine) Close() error {
	_ = e.logger.Sync()
	return e.db.Close()
}

// buildEngine opens the local database and wires the repositories,
// remote client, and orchestrator from config.
func buildEngine(ctx context.Context) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := []repo.Repository{
		repo.NewLeadRepo(db),
		repo.NewCustomerRepo(db),
		repo.NewQuotationRepo(db),
	}
	led := ledger.New(db)

	client := remote.NewClient(cfg.Server.BaseURL,
		remote.StaticToken(cfg.Server.Token),
		cfg.Server.GetTimeout(), logger)
	probe := remote.DialProbe(cfg.Server.BaseURL, 3*time.Second)

	orch := syncer.New(repos, led, client, probe, logger)

	return &engine{
		db:     db,
		ledger: led,
		orch:   orch,
		logger: logger,
		cfg:    cfg,
	}, nil
}
