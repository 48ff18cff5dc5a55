// Command sitehealthctl drives and watches site health scans from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sachin5713/unified-site-health-dashboard/internal/client"
)

var (
	apiURL   string
	apiToken string
)

var rootCmd = &cobra.Command{
	Use:           "sitehealthctl",
	Short:         "Control and watch site health scans",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOr("SITEHEALTH_API_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("SITEHEALTH_AUTH_ADMIN_TOKEN"), "admin bearer token")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *client.Client {
	return client.New(apiURL, apiToken, nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
