package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Stream file names under --target.
const (
	factualFileName  = "followthemoney.ndjson"
	inferredFileName = "followthemoney.inferred.ndjson"
	dedupFileName    = "followthemoney.inferred.dedup.ndjson"
)

type globalOptions struct {
	configPath string
	target     string
	logLevel   string
	verbose    bool
}

// env holds what every command needs once flags are parsed.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "ftmresolve",
		Short: "Entity resolution for FollowTheMoney record streams",
		Long: `ftmresolve turns unstructured evidence in a FollowTheMoney NDJSON stream into
linked entity mentions, merges duplicate mentions into canonical entities and
loads the result into Memgraph.

Examples:
  ftmresolve infer --target ./case-42
  ftmresolve dedup --target ./case-42
  ftmresolve dedup --in mentions.ndjson --out merged.ndjson
  ftmresolve load-graph --target ./case-42
  ftmresolve serve --config config/config.toml`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "TOML configuration file")
	flags.StringVar(&opts.target, "target", ".", "directory holding the record streams")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "shorthand for --log-level debug")

	root.AddCommand(
		newInferCmd(opts),
		newDedupCmd(opts),
		newLoadGraphCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// setup loads .env, the config file and environment overrides, then builds
// the logger.
func (o *globalOptions) setup(cmd *cobra.Command, override func(*config.Config)) (*env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.Setup(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closeLog: closeLog}, nil
}

// path returns explicit when set, else name under the target directory.
func (o *globalOptions) path(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(o.target, name)
}
