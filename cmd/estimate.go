package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/popmap/internal/census"
	"github.com/sells-group/popmap/internal/estimate"
)

var (
	estimateFile  string
	estimatePairs []string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate a population from weighted area relationships",
	Long: `Reads {"area_relationships": [{"area": ..., "percentage": ...}]} from --file
("-" for stdin), or takes --pair AREA=PERCENT flags, and prints the estimate as JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rels, err := readRelationships(cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := openQueryEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Estimator.Estimate(rels)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func readRelationships(stdin io.Reader) ([]estimate.Relationship, error) {
	if estimateFile == "" {
		if len(estimatePairs) == 0 {
			return nil, eris.Wrap(census.ErrMissingArgument, "estimate: --file or --pair is required")
		}
		return parsePairs(estimatePairs)
	}

	var (
		body []byte
		err  error
	)
	if estimateFile == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(estimateFile)
	}
	if err != nil {
		return nil, eris.Wrap(err, "estimate: read request")
	}
	return estimate.DecodeRequest(body)
}

// parsePairs parses AREA=PERCENT flags. The last "=" splits, so area names may contain "=".
func parsePairs(pairs []string) ([]estimate.Relationship, error) {
	rels := make([]estimate.Relationship, 0, len(pairs))
	for _, p := range pairs {
		i := strings.LastIndex(p, "=")
		if i <= 0 {
			return nil, eris.Wrapf(census.ErrInvalidArgument, "estimate: pair %q must be AREA=PERCENT", p)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(p[i+1:]), 64)
		if err != nil {
			return nil, eris.Wrapf(census.ErrInvalidArgument, "estimate: pair %q: bad percentage", p)
		}
		if err := estimate.ValidatePercentage(pct); err != nil {
			return nil, eris.Wrapf(err, "estimate: pair %q", p)
		}
		rels = append(rels, estimate.Relationship{Area: strings.TrimSpace(p[:i]), Percentage: pct})
	}
	return rels, nil
}

func init() {
	estimateCmd.Flags().StringVar(&estimateFile, "file", "", `JSON request file ("-" for stdin)`)
	estimateCmd.Flags().StringArrayVar(&estimatePairs, "pair", nil, "AREA=PERCENT relationship (repeatable)")
	rootCmd.AddCommand(estimateCmd)
}
