package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "List states, counties, or cities by name heuristics",
}

var areasStatesCmd = &cobra.Command{
	Use:   "states",
	Short: "List names containing \"state\"",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAreas(cmd, func(env *appEnv) ([]string, error) {
			return env.Engine.States()
		})
	},
}

var areasCountiesCmd = &cobra.Command{
	Use:   "counties STATE",
	Short: "List county names within STATE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAreas(cmd, func(env *appEnv) ([]string, error) {
			return env.Engine.Counties(args[0])
		})
	},
}

var areasCitiesCmd = &cobra.Command{
	Use:   "cities STATE COUNTY",
	Short: "List non-state, non-county names within STATE or COUNTY",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listAreas(cmd, func(env *appEnv) ([]string, error) {
			return env.Engine.Cities(args[0], args[1])
		})
	},
}

func listAreas(cmd *cobra.Command, list func(*appEnv) ([]string, error)) error {
	env, err := openQueryEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close()

	names, err := list(env)
	if err != nil {
		return err
	}
	printLines(cmd.OutOrStdout(), names)
	return nil
}

func printLines(out io.Writer, lines []string) {
	for _, l := range lines {
		_, _ = fmt.Fprintln(out, l)
	}
}

func init() {
	areasCmd.AddCommand(areasStatesCmd, areasCountiesCmd, areasCitiesCmd)
	rootCmd.AddCommand(areasCmd)
}
