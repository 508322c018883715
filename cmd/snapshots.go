package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/store"
)

var snapshotsLimit int

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List persisted snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "query")
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Store == nil {
			return eris.New("snapshots: store.driver must be sqlite or postgres")
		}
		list, err := env.Store.ListSnapshots(ctx, snapshotsLimit)
		if err != nil {
			return eris.Wrap(err, "snapshots")
		}
		if len(list) == 0 {
			zap.L().Info("no snapshots found, run 'load --persist' or 'serve' to save one")
			return nil
		}

		formatSnapshots(cmd.OutOrStdout(), list)
		return nil
	},
}

// formatSnapshots writes a tabular representation of snapshots to out.
func formatSnapshots(out io.Writer, list []store.SnapshotInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tYEAR\tROWS\tLOADED\tSAVED")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t----\t------\t-----")
	for _, s := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID,
			truncate(s.Source, 48),
			s.CurrentYear,
			s.Rows,
			s.LoadedAt.Format("2006-01-02 15:04"),
			s.SavedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	snapshotsCmd.Flags().IntVar(&snapshotsLimit, "limit", 20, "maximum snapshots to list (0 for all)")
	rootCmd.AddCommand(snapshotsCmd)
}
