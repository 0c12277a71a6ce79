package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/reqdesk/pkg/state"
)

// newStateCmd prints the persisted application state with tokens redacted.
func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the application state (tokens redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := state.LoadAppState(cfg.StatePath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.StatePath)
			_, err = st.RedactedCopy().WriteTo(cmd.OutOrStdout())
			return err
		},
	}
}
