package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signwise/core"
	"signwise/engine"
	"signwise/notify"
	"signwise/streaks"
)

func newLearnCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "learn",
		Short: "Record one learned sign for today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := f.service(cmd)
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			_, err = svc.Registry.RecordLearning(ctx, core.DeviceID(f.device))
			if err := warnOnly(cmd, err); err != nil {
				return err
			}
			snap, _ := svc.Registry.Snapshot(ctx, core.DeviceID(f.device))
			printSnapshot(cmd.OutOrStdout(), snap)
			if snap.SignsToday > 1 {
				fmt.Fprintln(cmd.OutOrStdout(), "today already counts towards the streak")
			}
			return nil
		},
	}
}

func newStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := f.service(cmd)
			if err != nil {
				return err
			}
			defer done()
			snap, err := svc.Registry.Snapshot(cmd.Context(), core.DeviceID(f.device))
			if err := warnOnly(cmd, err); err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newCheckCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Clear a streak whose last learning day is more than a day old",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := f.service(cmd)
			if err != nil {
				return err
			}
			defer done()
			snap, err := svc.Registry.CheckStatus(cmd.Context(), core.DeviceID(f.device))
			if err := warnOnly(cmd, err); err != nil {
				return err
			}
			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newResetCmd(f *rootFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the streak of this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset %q without --yes", f.device)
			}
			svc, done, err := f.service(cmd)
			if err != nil {
				return err
			}
			defer done()
			if err := warnOnly(cmd, svc.Registry.Reset(cmd.Context(), core.DeviceID(f.device))); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "streak of %s reset\n", f.device)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the reset")
	return cmd
}

func newRemindCmd(f *rootFlags) *cobra.Command {
	var (
		at         string
		motivateAt string
		once       bool
		motivate   bool
	)
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run the daily reminder in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := notify.ParseReminderTime(at); err != nil {
				return err
			}
			if motivateAt != "" {
				if _, err := notify.ParseReminderTime(motivateAt); err != nil {
					return err
				}
			}
			if motivate && !once {
				return errors.New("--motivate needs --once; use --motivate-at to schedule nudges")
			}
			loc, err := f.location()
			if err != nil {
				return err
			}
			svc, done, err := f.service(cmd, streaks.WithReminder(at, loc), streaks.WithMotivation(motivateAt))
			if err != nil {
				return err
			}
			defer done()

			ctx := cmd.Context()
			// load the device so it is a reminder target
			if _, err := svc.Registry.Snapshot(ctx, core.DeviceID(f.device)); err != nil {
				if err := warnOnly(cmd, err); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			switch {
			case once && motivate:
				n := svc.Scheduler.MotivateIdle(ctx)
				fmt.Fprintf(out, "nudged %d idle device(s)\n", n)
				return nil
			case once:
				svc.Scheduler.Remind(ctx)
				fmt.Fprintln(out, "reminder sent")
				return nil
			}

			if err := svc.Start(ctx); err != nil {
				return err
			}
			if next, ok := svc.Scheduler.NextRun(); ok {
				fmt.Fprintf(out, "next reminder at %s\n", next.Format(time.RFC1123))
			}
			if next, ok := svc.Scheduler.NextMotivation(); ok {
				fmt.Fprintf(out, "next nudge at %s\n", next.Format(time.RFC1123))
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", notify.DefaultReminderTime, "Time of day as HH:MM")
	cmd.Flags().StringVar(&motivateAt, "motivate-at", "", "Also nudge devices idle that day at HH:MM")
	cmd.Flags().BoolVar(&once, "once", false, "Send one reminder now and exit")
	cmd.Flags().BoolVar(&motivate, "motivate", false, "With --once, send a motivational nudge to idle devices instead")
	return cmd
}

// warnOnly reports storage failures on stderr and lets the command go on
// with the in-memory result. Other errors are returned.
func warnOnly(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrStorageUnavailable) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		return nil
	}
	return err
}

func printSnapshot(out io.Writer, s engine.Snapshot) {
	fmt.Fprintf(out, "%s %s\n", s.Status.Emoji, s.Status.Message)
	fmt.Fprintf(out, "current streak: %d\n", s.State.CurrentStreak)
	fmt.Fprintf(out, "longest streak: %d\n", s.State.LongestStreak)
	fmt.Fprintf(out, "signs today:    %d\n", s.SignsToday)
	if !s.State.LastActivity.IsZero() {
		fmt.Fprintf(out, "last learned:   %s\n", s.State.LastActivity)
	}
	fmt.Fprintf(out, "%s (%d to go)\n", s.Milestone, s.DaysToMilestone)
}
