// portalfile-cli is a command-line interface for the PortalFile upload service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL  string
	apiToken string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalfile-cli",
		Short: "PortalFile CLI - chunked uploads from the command line",
		Long: `PortalFile CLI uploads files to a PortalFile server, using chunked
resumable transfer for large files.

Configuration:
  Set PORTALFILE_URL and PORTALFILE_TOKEN environment variables, or use --url and --token flags.

Examples:
  portalfile-cli upload --portal acme-invoices report.pdf
  portalfile-cli status 11111111-2222-3333-4444-555555555555
  portalfile-cli config`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", os.Getenv("PORTALFILE_URL"), "PortalFile server URL (or PORTALFILE_URL env)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("PORTALFILE_TOKEN"), "API token (or PORTALFILE_TOKEN env)")

	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// checkConfig validates that required configuration is present.
func checkConfig() error {
	if baseURL == "" {
		return fmt.Errorf("server URL is required (use --url or PORTALFILE_URL environment variable)")
	}
	return nil
}

// formatBytes renders a byte count in human-readable units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// progressBar renders a fixed-width text progress bar.
func progressBar(pct int) string {
	const width = 30
	filled := pct * width / 100
	bar := make([]byte, width)
	for i := range bar {
		if i < filled {
			bar[i] = '='
		} else {
			bar[i] = ' '
		}
	}
	return "[" + string(bar) + "]"
}
