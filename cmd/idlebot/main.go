package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"idlebot/internal/app"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "idlebot",
	Short: "Run periodic game jobs with an idle activity in between",
	Long: `idlebot runs a fixed list of periodic jobs one at a time. When no job is
due it runs the idle activity, which is interrupted as soon as work arrives.
Each job's last successful run is persisted so a restart keeps its cadence.

Examples:
  idlebot --config config.yaml         # same as "idlebot run"
  idlebot status                       # show last/next run per job
  idlebot reset "fetch(alice)"         # forget one job's history`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and wait for SIGINT/SIGTERM",
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show each job's interval, last run and next due time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		jobs, err := app.Inspect(cmd.Context(), cfgPath, now)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTASK\tEVERY\tLAST RUN\tNEXT DUE")
		for _, j := range jobs {
			last := "never"
			if !j.LastRun.IsZero() {
				last = humanize.RelTime(j.LastRun, now, "ago", "from now")
			}
			next := "now"
			if j.NextRun.After(now) {
				next = humanize.RelTime(j.NextRun, now, "ago", "from now")
			} else if !j.LastRun.IsZero() {
				next = "overdue (" + humanize.RelTime(j.NextRun, now, "ago", "from now") + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.Key, j.Task, j.Interval, last, next)
		}
		return tw.Flush()
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset [key...]",
	Short: "Forget persisted run times (all keys when none are given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		forgotten, err := app.Reset(cmd.Context(), cfgPath, args...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(forgotten) == 0 {
			fmt.Fprintln(out, "nothing to reset")
			return nil
		}
		fmt.Fprintf(out, "forgot %s: %s\n", humanize.Comma(int64(len(forgotten)))+" key(s)", strings.Join(forgotten, ", "))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (json or yaml)")
	rootCmd.AddCommand(runCmd, statusCmd, resetCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	reason := "signal"
	if ctx.Err() == nil {
		reason = "fatal error"
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	fmt.Fprintln(cmd.OutOrStdout(), "Goodbye.")

	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
