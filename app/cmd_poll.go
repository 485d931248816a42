package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdPoll(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Fetch active alerts from the feed and queue them for enrichment",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(logger, config)
			if err != nil {
				return err
			}
			count, err := e.ingestor.PollActive(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d alerts ingested\n", count)
			return nil
		},
	}
}
