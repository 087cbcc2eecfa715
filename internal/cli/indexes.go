package cli

import (
	"context"
	"fmt"
	"time"

	"studyhub/portal/internal/config"
	"studyhub/portal/internal/repository/mongo"

	"github.com/spf13/cobra"
)

func newIndexesCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the MongoDB indexes and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			client, err := mongo.ConnectDB(cfg.Database.URI)
			if err != nil {
				return fmt.Errorf("connect mongo: %w", err)
			}
			defer mongo.DisconnectDB(client)

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := mongo.EnsureIndexes(ctx, client.Database(cfg.Database.Name)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexes ensured on %s\n", cfg.Database.Name)
			return nil
		},
	}
}
