package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-sync-scheduler/internal/app/storage"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted sync status",
		Long: `Print the sync status record from the configured status store as JSON.
A store that has never been written reports NotRunning.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			factory, err := storage.NewStorageFactory(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to open status store: %w", err)
			}
			defer factory.Cleanup()

			store, err := factory.CreateStatusStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to open status store: %w", err)
			}

			record, err := store.GetStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to read sync status: %w", err)
			}

			output, err := json.MarshalIndent(record, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format sync status: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return err
		},
	}
}
