package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/popmap/internal/census"
)

var (
	searchMin    string
	searchMax    string
	searchStatus string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search areas by name, population range, and status",
	Long:  "Matches area names containing QUERY (case-insensitive), optionally within a current-year population range and a comma-separated status list.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openQueryEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Engine.Search(args[0], searchMin, searchMax, searchStatus)
		if err != nil {
			return err
		}

		t, err := env.tableOrErr()
		if err != nil {
			return err
		}
		if searchJSON {
			return writeFieldMaps(cmd.OutOrStdout(), recs)
		}
		formatAreas(cmd.OutOrStdout(), recs, t.CurrentYear())
		return nil
	},
}

// openQueryEnv builds the environment and loads a table for read-only commands.
func openQueryEnv(ctx context.Context) (*appEnv, error) {
	env, err := initApp(ctx, "query")
	if err != nil {
		return nil, err
	}
	if err := env.loadInitial(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// formatAreas writes a tabular list of records with their current population.
func formatAreas(out io.Writer, recs []census.AreaRecord, year int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "AREA\tSTATUS\t%d POPULATION\n", year)
	_, _ = fmt.Fprintln(w, "----\t------\t---------------")
	for _, r := range recs {
		pop := "-"
		if n, ok := r.CurrentPopulation(); ok {
			pop = strconv.FormatInt(n, 10)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Status, pop)
	}
	_ = w.Flush()
}

func writeFieldMaps(out io.Writer, recs []census.AreaRecord) error {
	rows := make([]map[string]any, len(recs))
	for i, r := range recs {
		rows[i] = r.Fields()
	}
	return writeJSON(out, rows)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	searchCmd.Flags().StringVar(&searchMin, "min", "Min", `minimum current-year population ("Min" for none)`)
	searchCmd.Flags().StringVar(&searchMax, "max", "Max", `maximum current-year population ("Max" for none)`)
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "comma-separated statuses to include (exact match)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print records as JSON field maps")
	rootCmd.AddCommand(searchCmd)
}
