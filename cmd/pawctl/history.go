package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RichardoC/pawtrack/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a patient's conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, svc, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			h := history.New(svc, client, token, patientID)
			if clear {
				return h.Clear(cmd.Context())
			}

			msgs, err := h.Messages(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\n", m.GetType(), m.GetContent())
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "purge the conversation instead of printing it")
	return cmd
}
