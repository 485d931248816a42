package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdBackfillZones(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-zones",
		Short: "Fetch the zone index from the feed and queue every zone for geometry caching",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(logger, config)
			if err != nil {
				return err
			}
			count, err := e.zones.Backfill(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d zones queued\n", count)
			return nil
		},
	}
}
