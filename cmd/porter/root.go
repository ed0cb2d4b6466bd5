package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/porter/internal/config"
	"github.com/ALT-F4-LLC/porter/internal/logging"
	"github.com/ALT-F4-LLC/porter/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	appKey contextKey = "app"
	cfgKey contextKey = "cfg"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// pipelineErr classifies an error returned by the pipeline.
func pipelineErr(err error) *CmdError {
	return cmdErr(err, output.CodeFor(err))
}

var rootCmd = &cobra.Command{
	Use:     "porter",
	Short:   "Export and import product catalogs",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve()
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)

		if _, ok := cmd.Annotations["skipDB"]; ok {
			cmd.SetContext(ctx)
			return nil
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}
		if !exists {
			return cmdErr(
				fmt.Errorf("no porter workspace found, run 'porter init' to create one"),
				output.ErrNotFound,
			)
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		opts := logging.Options{Env: cfg.Env, File: cfg.LogPath, Level: cfg.LogLevel}
		if verbose {
			opts.Stderr = os.Stderr
			if opts.Level == "" {
				opts.Level = "debug"
			}
		}
		log, closeLog, err := logging.New(opts)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		a, err := openApp(ctx, cfg, log)
		if err != nil {
			_ = closeLog()
			return cmdErr(err, output.ErrGeneral)
		}
		a.closers = append(a.closers, func() error {
			_ = log.Sync()
			return closeLog()
		})
		log.Debug("command started", zap.String("command", cmd.CommandPath()), zap.String("operator", a.operator))

		cmd.SetContext(context.WithValue(ctx, appKey, a))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if a := getApp(cmd); a != nil {
			return a.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Copy log entries to stderr")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	return output.New(jsonMode, quietMode)
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getApp(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey).(*app)
	return a
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
	quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
	w := output.New(jsonMode, quietMode)

	var ce *CmdError
	if errors.As(err, &ce) {
		return w.Error(ce.Err, ce.Code)
	}
	return w.Error(err, output.CodeFor(err))
}
