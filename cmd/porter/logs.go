package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/porter/internal/logging"
	"github.com/ALT-F4-LLC/porter/internal/model"
	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/render"
)

var logsCmd = &cobra.Command{
	Use:         "logs",
	Short:       "Show recent pipeline log entries",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		n, _ := cmd.Flags().GetInt("lines")
		lines, err := logging.Tail(cfg.LogPath, n)
		if err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		if len(lines) == 0 {
			w.Success([]string{}, render.EmptyState("No log entries.", "", false))
			return nil
		}
		w.Success(lines, strings.Join(lines, "\n"))
		return nil
	},
}

var logsClearCmd = &cobra.Command{
	Use:         "clear",
	Short:       "Truncate the pipeline log",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		if !cfg.CanManageCatalog(cfg.OperatorName()) {
			return cmdErr(model.ErrPermissionDenied, output.ErrPermission)
		}

		force, _ := cmd.Flags().GetBool("force")
		jsonMode, _ := cmd.Flags().GetBool("json")
		if !force && !jsonMode {
			var confirmed bool
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Clear %s?", cfg.LogPath)).
					Affirmative("Clear").
					Negative("Cancel").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					w.Info("Cancelled.")
					return nil
				}
				return cmdErr(fmt.Errorf("interactive form failed: %w", err), output.ErrGeneral)
			}
			if !confirmed {
				w.Info("Cancelled.")
				return nil
			}
		} else if !force {
			return cmdErr(errors.New("refusing to clear the log without --force in JSON mode"), output.ErrValidation)
		}

		if err := logging.Clear(cfg.LogPath); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}
		w.Success(struct {
			Path string `json:"path"`
		}{Path: cfg.LogPath}, "Log cleared")
		return nil
	},
}

func init() {
	logsCmd.Flags().IntP("lines", "n", 50, "Number of entries to show")
	logsClearCmd.Flags().BoolP("force", "f", false, "Clear without confirmation")

	logsCmd.AddCommand(logsClearCmd)
	rootCmd.AddCommand(logsCmd)
}
