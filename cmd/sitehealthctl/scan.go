package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sachin5713/unified-site-health-dashboard/internal/client"
	"github.com/sachin5713/unified-site-health-dashboard/internal/client/poller"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Start or watch a scan run",
}

var scanStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new scan run and watch it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		c := newClient()
		res, err := c.StartScan(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", color.GreenString("✓"), res.Message)
		fmt.Printf("  Run: %s\n", res.RunID)

		if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
			return nil
		}
		fmt.Println("Testing API connection...")
		return watch(ctx, c, false, true)
	},
}

var scanWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the progress of the current run",
	Long: `Poll the current run every two seconds until it completes.

Without --auto nothing is polled unless a scan is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()

		auto, _ := cmd.Flags().GetBool("auto")
		return watch(ctx, newClient(), auto, false)
	},
}

func watch(ctx context.Context, c *client.Client, auto, force bool) error {
	r := &terminalRenderer{
		w: os.Stdout,
		onReload: func() {
			scores, err := c.Scores(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to load scores: %v\n", err)
				return
			}
			printScores(os.Stdout, scores)
		},
	}

	p := poller.New(c, r, poller.Config{AutoPoll: auto}, logger.Noop())
	err := p.Start(ctx, force)
	if errors.Is(err, poller.ErrNotRunning) {
		fmt.Printf("%s\n", color.New(color.FgHiBlack).Sprint("No scan is running"))
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	scanStartCmd.Flags().Bool("no-watch", false, "return once the run is accepted")
	scanWatchCmd.Flags().Bool("auto", false, "poll even when no scan is running")

	scanCmd.AddCommand(scanStartCmd, scanWatchCmd)
	rootCmd.AddCommand(scanCmd)
}
