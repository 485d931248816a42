package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewCmdSweep(logger logrus.FieldLogger, config *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired alerts from both storage tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine(logger, config)
			if err != nil {
				return err
			}
			count, err := e.sweeper.SweepExpired(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired alerts removed\n", count)
			return nil
		},
	}
}
