package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Show the current category scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		scores, err := newClient().Scores(cmd.Context())
		if err != nil {
			return err
		}
		printScores(cmd.OutOrStdout(), scores)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show audit log statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newClient().Statistics(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Pages scanned: %d\n", s.TargetsScanned)
		fmt.Fprintf(out, "Audits:        %d\n", s.TotalAudits)
		if s.FirstScanDate != nil {
			fmt.Fprintf(out, "First scan:    %s\n", s.FirstScanDate.Format(time.DateTime))
		}
		if s.LastScanDate != nil {
			fmt.Fprintf(out, "Last scan:     %s\n", s.LastScanDate.Format(time.DateTime))
		}
		return nil
	},
}

var auditsCmd = &cobra.Command{
	Use:   "audits <category>",
	Short: "List the latest audits of a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		data, err := newClient().AuditData(cmd.Context(), args[0], profile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Fprintf(out, "%s (%s) average %s\n", cyan(args[0]), profile, formatScore(data.AverageScore))
		if data.ScanDate != nil {
			fmt.Fprintf(out, "Scanned %s\n", data.ScanDate.Format(time.DateTime))
		}
		for _, a := range data.Audits {
			fmt.Fprintf(out, "  %-8s %5s  %s  %s\n", a.Severity, formatScore(a.Score), a.Name, a.TargetURI)
		}
		return nil
	},
}

var rescanCmd = &cobra.Command{
	Use:   "rescan <uri>",
	Short: "Probe one configured page immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().Rescan(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s score %s at %s\n",
			color.GreenString("✓"), args[0], formatScore(res.Score), res.Timestamp.Format(time.DateTime))
		return nil
	},
}

var issuesCmd = &cobra.Command{
	Use:   "issues <category>",
	Short: "Print the rendered issues table of a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		html, err := newClient().SectionIssues(cmd.Context(), args[0], target)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), html)
		return nil
	},
}

func init() {
	auditsCmd.Flags().String("profile", "mobile", "device profile (mobile or desktop)")
	issuesCmd.Flags().String("target", "", "restrict to one page uri")

	rootCmd.AddCommand(scoresCmd, statsCmd, auditsCmd, rescanCmd, issuesCmd)
}
