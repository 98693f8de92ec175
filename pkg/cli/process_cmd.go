package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dclake/internal/service/ingestion"
)

func newProcessCmd(rt *cliState) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "process <reference>",
		Short: "Build the canonical table of a data collection",
		Long: "Reads every raw file of the data collection, reconciles their schemas and writes\n" +
			"the combined canonical table. The reference is a tag, workflow.tag or collection ID.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			res, err := a.Ingestion.ProcessReference(cmd.Context(), "", args[0], ingestion.ProcessOptions{Overwrite: overwrite})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, res)
			}
			printDetail(out, map[string]string{
				"dc_id":            res.DataCollectionID,
				"reference":        res.Reference,
				"files":            strconv.Itoa(res.Files),
				"rows":             strconv.FormatInt(res.Rows, 10),
				"columns":          strconv.Itoa(res.Columns),
				"location":         res.Location,
				"aggregation_time": res.AggregationTime.Format(time.RFC3339),
			})
			if len(res.CoercedColumns) > 0 {
				_, _ = fmt.Fprintf(out, "coerced to VARCHAR: %v\n", res.CoercedColumns)
			}
			printMessages(out, "Warnings", res.Warnings)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing canonical table")
	return cmd
}
