package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every message in a patient's conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, svc, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := svc.Purge(cmd.Context(), token, patientID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
