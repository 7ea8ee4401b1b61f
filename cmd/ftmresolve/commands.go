package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/agenthands/ftmresolve/internal/config"
	"github.com/agenthands/ftmresolve/internal/core"
	"github.com/agenthands/ftmresolve/internal/metrics"
	"github.com/agenthands/ftmresolve/internal/server"
	"github.com/spf13/cobra"
)

func newInferCmd(opts *globalOptions) *cobra.Command {
	var (
		factual    string
		out        string
		model      string
		ollamaHost string
		maxChars   int
	)

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Extract entity mentions from image descriptions and document text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, func(cfg *config.Config) {
				if model != "" {
					cfg.LLM.Model = model
				}
				if ollamaHost != "" {
					cfg.LLM.BaseURL = ollamaHost
				}
				if maxChars > 0 {
					cfg.Inference.MaxChars = maxChars
				}
			})
			if err != nil {
				return err
			}
			defer e.closeLog()

			p, cleanup, err := core.Build(cmd.Context(), e.cfg, nil, e.logger, false)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := p.Infer(cmd.Context(), opts.path(factual, factualFileName), opts.path(out, inferredFileName))
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&factual, "factual", "", "factual input stream (default <target>/"+factualFileName+")")
	cmd.Flags().StringVar(&out, "out", "", "mention output stream (default <target>/"+inferredFileName+")")
	cmd.Flags().StringVar(&model, "model", "", "model name for the extraction oracle")
	cmd.Flags().StringVar(&ollamaHost, "ollama-host", "", "LLM endpoint base URL")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "truncate evidence text to this many characters")
	return cmd
}

func newDedupCmd(opts *globalOptions) *cobra.Command {
	var (
		in       string
		out      string
		spoolDir string
		schemata []string
	)

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Merge duplicate mentions into canonical entities",
		Long: `Merge mentions of the same entity and rewrite references to the merged ids.

Canonical entities are written first, sorted by id, followed by every other
record in input order. Exits with status 2 when the input does not exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, func(cfg *config.Config) {
				if spoolDir != "" {
					cfg.Dedup.SpoolDir = spoolDir
				}
				if len(schemata) > 0 {
					cfg.Dedup.Schemata = schemata
				}
			})
			if err != nil {
				return err
			}
			defer e.closeLog()

			p, err := core.NewPipeline(e.cfg, nil, nil, nil, e.logger)
			if err != nil {
				return err
			}
			stats, err := p.Dedup(cmd.Context(), opts.path(in, inferredFileName), opts.path(out, dedupFileName))
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "mention stream (default <target>/"+inferredFileName+")")
	cmd.Flags().StringVar(&out, "out", "", "output stream (default <target>/"+dedupFileName+")")
	cmd.Flags().StringVar(&spoolDir, "spool-dir", "", "directory for the temporary spool file (default: next to the output)")
	cmd.Flags().StringSliceVar(&schemata, "schema", nil, "restrict merging to these schemata (repeatable)")
	return cmd
}

func newLoadGraphCmd(opts *globalOptions) *cobra.Command {
	var in string

	cmd := &cobra.Command{
		Use:   "load-graph",
		Short: "Load a deduplicated stream into Memgraph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, nil)
			if err != nil {
				return err
			}
			defer e.closeLog()

			p, cleanup, err := core.Build(cmd.Context(), e.cfg, nil, e.logger, true)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := p.LoadGraph(cmd.Context(), opts.path(in, dedupFileName))
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "record stream (default <target>/"+dedupFileName+")")
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup(cmd, func(cfg *config.Config) {
				if port > 0 {
					cfg.Server.Port = port
				}
				if host != "" {
					cfg.Server.Host = host
				}
				if cfg.Server.Root == "" {
					cfg.Server.Root = opts.target
				}
			})
			if err != nil {
				return err
			}
			defer e.closeLog()

			m, err := metrics.NewMetrics()
			if err != nil {
				return err
			}
			p, cleanup, err := core.Build(cmd.Context(), e.cfg, m, e.logger, true)
			if err != nil {
				return err
			}
			defer cleanup()

			s, err := server.NewServer(p, e.cfg.Server, m, e.logger)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	cmd.Flags().StringVar(&host, "host", "", "listen address (default from config)")
	return cmd
}

func printStats(w io.Writer, stats interface{}) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
