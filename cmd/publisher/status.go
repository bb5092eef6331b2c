package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/glotcast/relay/internal/producer"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the relay's status document",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := producer.NewClient(serverURL, 10, 10*time.Second, logger)

			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetching status: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}
