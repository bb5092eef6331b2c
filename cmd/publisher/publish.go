package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/glotcast/relay/internal/producer"
)

func publishCmd() *cobra.Command {
	var (
		lang     string
		filePath string
		ratePerS int
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Read fragments line by line and post them to the relay",
		Long: `Reads source-text fragments from stdin (or a file), one per line,
and posts each to the relay's ingest endpoint with an increasing
sequence number. Empty lines are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lang == "" {
				return fmt.Errorf("--lang is required")
			}

			var in io.Reader = os.Stdin
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer f.Close()
				in = f
			}

			client := producer.NewClient(serverURL, ratePerS, 10*time.Second, logger)

			var seq, sent, skipped int64
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				seq++
				result, err := client.Publish(cmd.Context(), lang, line, seq)
				if err != nil {
					logger.Error("publish failed", zap.Int64("seq", seq), zap.Error(err))
					continue
				}

				if result.Accepted {
					sent++
					logger.Debug("fragment queued",
						zap.Int64("seq", seq),
						zap.Int("clientCount", result.ClientCount),
					)
				} else {
					skipped++
					logger.Warn("no subscribers, fragment skipped",
						zap.Int64("seq", seq),
						zap.String("lang", lang),
					)
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}

			logger.Info("publish complete",
				zap.Int64("fragments", seq),
				zap.Int64("queued", sent),
				zap.Int64("skipped", skipped),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "target language tag (required)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "read fragments from a file instead of stdin")
	cmd.Flags().IntVarP(&ratePerS, "rate", "r", 10, "maximum fragments per second")

	return cmd
}
