package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ricorrenti/internal/amqp"
)

func newRequestCmd(root *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask a running worker to analyze the ledger now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := root.loadLenient()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required to reach the worker")
			}

			client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.AMQPReportQueue, logger.Slog())
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.PublishAnalysisRequest(ctx, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analysis request queued on %s\n", cfg.AMQPQueue)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "reason recorded in the request")
	return cmd
}
