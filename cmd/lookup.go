package main

import (
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup NAME",
	Short: "Show the first area whose name contains NAME",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openQueryEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Engine.Lookup(args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rec.Fields())
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
}
