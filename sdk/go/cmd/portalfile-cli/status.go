package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	portalfile "github.com/portalfile/portalfile/sdk/go"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show a chunked session's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkConfig(); err != nil {
				return err
			}

			client, err := portalfile.NewClient(portalfile.ClientConfig{
				BaseURL:  baseURL,
				APIToken: apiToken,
			})
			if err != nil {
				return err
			}

			status, err := client.GetUploadStatus(context.Background(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Upload:    %s\n", status.UploadID)
			fmt.Printf("Filename:  %s\n", status.Filename)
			fmt.Printf("Chunks:    %d/%d (%s received)\n",
				status.ChunksReceived, status.TotalChunks, formatBytes(status.ReceivedBytes))
			if len(status.MissingChunks) > 0 {
				fmt.Printf("Missing:   %v\n", status.MissingChunks)
			}
			if status.Complete {
				fmt.Println("State:     complete")
			} else {
				fmt.Printf("State:     in progress, expires %s\n", status.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
