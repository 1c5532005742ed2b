package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/roach88/convstore/internal/config"
	"github.com/roach88/convstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string // YAML config file; empty uses defaults and environment
	DB         string // overrides database.dsn
	Driver     string // overrides database.driver
	Schema     string // CUE schema document; empty uses the built-in schema
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the convstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "convstore",
		Short: "convstore - conversation store migrations and tag guard",
		Long: `Migrates a point-to-point messages table to conversation grouping and back,
and attaches tags to posts under a per-post limit.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return config.LoadDotEnv()
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database path or URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "database driver: sqlite|postgres (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema document (CUE) to use instead of the built-in one")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewConsolidateCommand(opts))
	cmd.AddCommand(NewTagCommand(opts))
	cmd.AddCommand(NewConversationsCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// settings resolves the config file, environment and flag overrides.
func (o *RootOptions) settings() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if o.DB != "" {
		cfg.Database.DSN = o.DB
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// logger writes structured logs to w at the configured level, or debug
// when --verbose is set.
func (o *RootOptions) logger(w io.Writer, cfg config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session bundles what a store-backed command needs.
type session struct {
	cfg    config.Config
	store  *store.Store
	logger *slog.Logger
	out    *OutputFormatter
}

// open resolves settings and opens the store. On failure the error has
// already been reported through the formatter.
func (o *RootOptions) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	out := o.formatter(cmd)

	cfg, err := o.settings()
	if err != nil {
		if outErr := out.Error(ErrCodeConfig, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	var storeOpts []store.Option
	if o.Schema != "" {
		desc, err := loadDescriptor(o.Schema)
		if err == nil {
			err = desc.CheckStore()
		}
		if err != nil {
			if outErr := out.Error(ErrCodeSchemaFailed, err.Error(), nil); outErr != nil {
				return nil, outErr
			}
			return nil, WrapExitError(ExitCommandError, "invalid schema", err)
		}
		storeOpts = append(storeOpts, store.WithDescriptor(desc))
	}

	st, err := store.OpenDriver(ctx, cfg.Database.Driver, cfg.Database.DSN, storeOpts...)
	if err != nil {
		if outErr := out.Error(ErrCodeOpenFailed, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	logger := o.logger(out.GetErrWriter(), cfg)
	out.VerboseLog("Opened %s database %s", cfg.Database.Driver, redactDSN(cfg.Database.DSN))
	return &session{cfg: cfg, store: st, logger: logger, out: out}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// redactDSN hides the password of a connection URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
