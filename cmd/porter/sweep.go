package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/porter/internal/output"
	"github.com/ALT-F4-LLC/porter/internal/sweeper"
)

func sweepMessage(rep *sweeper.Report) string {
	msg := fmt.Sprintf("Swept %d expired session(s), removed %d path(s)", rep.Sessions, len(rep.Removed))
	if len(rep.Failed) > 0 {
		msg += fmt.Sprintf(", %d could not be removed", len(rep.Failed))
	}
	return msg
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired sessions and abandoned work files",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		a := getApp(cmd)

		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			rep, err := a.sweeper.Sweep(cmd.Context())
			if err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			w.Success(rep, sweepMessage(rep))
			return nil
		}

		schedule, _ := cmd.Flags().GetString("schedule")
		if schedule == "" {
			schedule = a.cfg.SweepSchedule
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w.Info("Sweeping on schedule %q, press Ctrl+C to stop", schedule)
		err := a.sweeper.Watch(ctx, schedule, func(rep *sweeper.Report) {
			w.Info("%s", sweepMessage(rep))
		})
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		w.Success(struct {
			Schedule string `json:"schedule"`
		}{Schedule: schedule}, "Sweeper stopped")
		return nil
	},
}

func init() {
	sweepCmd.Flags().Bool("watch", false, "Keep running and sweep on a schedule")
	sweepCmd.Flags().String("schedule", "", "Cron schedule for --watch (default from PORTER_SWEEP_SCHEDULE)")
	rootCmd.AddCommand(sweepCmd)
}
