package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rex8112/HumbleScrapperBot/bundle"
	"github.com/rex8112/HumbleScrapperBot/config"
	"github.com/rex8112/HumbleScrapperBot/logging"
	"github.com/rex8112/HumbleScrapperBot/metrics"
	"github.com/rex8112/HumbleScrapperBot/store/sqlite"
)

// app carries state shared by all commands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
	logFile io.Closer // set when log.output names a file
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.NewViper(), logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "archive",
		Short:         "Archive of Humble Choice months and their games",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./archive.yaml)")
	flags.String("db", "", "SQLite database path (\":memory:\" for in-memory)")
	flags.String("driver", "", "SQLite driver: sqlite3 (cgo) or sqlite (pure Go)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console, auto)")
	flags.String("log-output", "", "log destination (stderr, stdout, or a file path)")
	a.bind(cmd, "db.path", "db")
	a.bind(cmd, "db.driver", "driver")
	a.bind(cmd, "log.level", "log-level")
	a.bind(cmd, "log.format", "log-format")
	a.bind(cmd, "log.output", "log-output")

	cmd.AddCommand(newServeCmd(a), newImportCmd(a), newListCmd(a))
	return cmd, a
}

// bind maps a persistent flag onto a config key. Unset flags leave the
// key to env, file and defaults.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	if err := a.v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("binding flag %s: %v", flag, err))
	}
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logger, closer, err := logging.Open(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Fields: map[string]string{"service": "archive"},
	})
	if err != nil {
		return err
	}
	a.logger, a.logFile = logger, closer
	if cfg.ConfigFile != "" {
		a.logger.Debug().Str("file", cfg.ConfigFile).Msg("config loaded")
	}
	return nil
}

// close releases the log file, if one was opened. Safe to call before init.
func (a *app) close() error {
	if a.logFile == nil {
		return nil
	}
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// openArchive opens the configured store and builds an archive on it.
// The caller closes the store.
func (a *app) openArchive(collector metrics.Collector) (*sqlite.Store, *bundle.Archive, error) {
	store, err := sqlite.New(a.cfg.DB.Path, sqlite.WithDriver(a.cfg.DB.Driver))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	archive := bundle.NewArchive(store,
		bundle.WithLogger(a.logger),
		bundle.WithMetrics(collector),
	)
	return store, archive, nil
}
