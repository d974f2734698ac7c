package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	portalfile "github.com/portalfile/portalfile/sdk/go"
)

func uploadCmd() *cobra.Command {
	var (
		portalID      string
		uploaderName  string
		uploaderEmail string
		message       string
		compress      bool
		noProgress    bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to a portal",
		Long: `Upload a file to a PortalFile portal. Large files are split into chunks
and transferred in parallel with automatic retry.

Examples:
  portalfile-cli upload --portal acme-invoices report.pdf
  portalfile-cli upload --portal acme-invoices --compress backup.sql
  portalfile-cli upload --portal acme-invoices --name "Jo" --email jo@example.com scan.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfig(); err != nil {
				return err
			}
			if portalID == "" {
				return fmt.Errorf("portal id is required (use --portal)")
			}

			filePath := args[0]
			info, err := os.Stat(filePath)
			if err != nil {
				return fmt.Errorf("file not found: %s", filePath)
			}

			client, err := portalfile.NewClient(portalfile.ClientConfig{
				BaseURL:  baseURL,
				APIToken: apiToken,
			})
			if err != nil {
				return err
			}

			opts := &portalfile.UploadOptions{
				PortalID:      portalID,
				UploaderName:  uploaderName,
				UploaderEmail: uploaderEmail,
				Message:       message,
				Compress:      compress,
			}
			if !noProgress {
				opts.Progress = portalfile.ProgressFunc(func(p portalfile.ProgressEvent) {
					status := fmt.Sprintf("\r%s %3d%% (%s/%s)",
						progressBar(p.Percentage),
						p.Percentage,
						formatBytes(p.BytesUploaded),
						formatBytes(p.TotalBytes),
					)
					if p.TotalChunks > 0 {
						status += fmt.Sprintf(" [chunk %d/%d]", p.CurrentChunk, p.TotalChunks)
					}
					fmt.Print(status)
				})
			}

			fmt.Printf("Uploading: %s (%s)\n", filePath, formatBytes(info.Size()))

			result, err := client.Upload(context.Background(), filePath, opts)
			if err != nil {
				fmt.Println()
				return err
			}

			fmt.Println()
			fmt.Printf("Uploaded: %s\n", result.Filename)
			fmt.Printf("File ID:  %s\n", result.FileID)
			fmt.Printf("Link:     %s\n", result.WebViewLink)
			if result.Fallback {
				fmt.Println("Note: chunked transfer failed, file was sent in a single request")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&portalID, "portal", "", "Destination portal id (required)")
	cmd.Flags().StringVar(&uploaderName, "name", "", "Uploader name shown to the portal owner")
	cmd.Flags().StringVar(&uploaderEmail, "email", "", "Uploader email")
	cmd.Flags().StringVar(&message, "message", "", "Note attached to the upload")
	cmd.Flags().BoolVar(&compress, "compress", false, "Gzip the file before transfer")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")

	return cmd
}
