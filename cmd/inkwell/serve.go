package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/app"
	"github.com/dshills/inkwell/internal/logging"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		root        string
		noWatch     bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Serve a host over JSON-RPC on stdin and stdout",
		Example: `  # Serve documents under the current directory
  inkwell serve

  # Serve a notes directory with two files open
  inkwell serve --root ~/notes ~/notes/todo.md ~/notes/ideas.md

  # Expose Prometheus metrics
  inkwell serve --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("root") {
				cfg.Store.Root = root
			}
			if noWatch {
				cfg.Watch.Enabled = false
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Logging.Output == "stdout" {
				return errors.New("logging.output cannot be stdout while serving; stdout carries the RPC channel")
			}

			logger, err := logging.New(logging.Config{
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
				OutputPath: cfg.Logging.Output,
			})
			if err != nil {
				return err
			}

			application, err := app.New(app.Options{
				Config: cfg,
				Logger: logger.Logger,
				Files:  args,
			})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			logger.Info("serving", zap.String("version", version))
			return application.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "Directory documents are stored in (store.root)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the store for external changes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics (metrics.addr)")
	return cmd
}
