package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/ingest"
)

var loadPersist bool

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Parse the configured sources and report what loads",
	Long:  "Reads every configured source, reports row counts and dropped rows, and with --persist saves the result as a snapshot.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "load")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Loader.Load(ctx)
		if err != nil {
			return err
		}
		formatLoadResult(cmd.OutOrStdout(), res)

		if !loadPersist {
			return nil
		}
		if env.Store == nil {
			return eris.New("load: --persist needs store.driver sqlite or postgres")
		}
		if err := env.Store.SaveSnapshot(ctx, res.Table); err != nil {
			return eris.Wrap(err, "load: persist snapshot")
		}
		zap.L().Info("snapshot saved", zap.String("snapshot_id", res.Table.ID()))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved snapshot %s\n", res.Table.ID())
		return nil
	},
}

// formatLoadResult writes a load summary followed by any dropped rows.
func formatLoadResult(out io.Writer, res *ingest.Result) {
	t := res.Table
	_, _ = fmt.Fprintf(out, "table %s: %d rows, current year %d\n", t.ID(), t.Len(), t.CurrentYear())
	_, _ = fmt.Fprintf(out, "source: %s\n", t.Source())
	if len(res.RowErrors) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "%d rows dropped:\n", len(res.RowErrors))
	for _, re := range res.RowErrors {
		_, _ = fmt.Fprintf(out, "  %s\n", re.Error())
	}
}

func init() {
	loadCmd.Flags().BoolVar(&loadPersist, "persist", false, "save the loaded table as a snapshot")
	rootCmd.AddCommand(loadCmd)
}
