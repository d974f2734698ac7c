package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	portalfile "github.com/portalfile/portalfile/sdk/go"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the server's advertised upload limits",
		Args:  cobra.NoArgs,
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

			cfg, err := client.GetConfig(context.Background())
			if err != nil {
				return err
			}

			fmt.Printf("Max file size:       %s\n", formatBytes(cfg.MaxFileSize))
			fmt.Printf("Single upload limit: %s\n", formatBytes(cfg.SingleUploadLimit))
			fmt.Printf("Chunk size:          %s\n", formatBytes(cfg.ChunkSize))
			fmt.Printf("Chunk timeout:       %ds\n", cfg.ChunkTimeoutSec)
			fmt.Printf("File timeout:        %ds\n", cfg.FileTimeoutSec)
			return nil
		},
	}
}
