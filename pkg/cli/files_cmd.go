package cli

import (
	"github.com/spf13/cobra"

	"dclake/internal/domain"
)

func newFilesCmd(rt *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage raw files registered to data collections",
	}
	cmd.AddCommand(newFilesAddCmd(rt))
	cmd.AddCommand(newFilesListCmd(rt))
	return cmd
}

func newFilesAddCmd(rt *cliState) *cobra.Command {
	var (
		runTag string
		format string
	)

	cmd := &cobra.Command{
		Use:   "add <reference> <location>",
		Short: "Register a raw file to a data collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			rf, err := a.Catalog.RegisterFile(cmd.Context(), args[0], domain.File{
				Location: args[1],
				RunTag:   runTag,
				Format:   domain.Format(format),
			})
			if err != nil {
				return err
			}

			fields := map[string]string{
				"id":       rf.ID,
				"dc_id":    rf.DataCollectionID,
				"location": rf.Location,
				"run_tag":  rf.RunTag,
				"format":   string(rf.Format),
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), fields)
			}
			printDetail(cmd.OutOrStdout(), fields)
			return nil
		},
	}

	cmd.Flags().StringVar(&runTag, "run-tag", "", "Run tag stamped on the file's rows")
	cmd.Flags().StringVar(&format, "format", "", "File format (defaults to the collection's format)")
	return cmd
}

func newFilesListCmd(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list <reference>",
		Short: "List registered and scanned files of a data collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			p, err := a.Catalog.ResolveProject(cmd.Context(), "")
			if err != nil {
				return err
			}
			res, ok := p.Resolve(args[0])
			if !ok {
				return domain.ErrNotFound("data collection %q not found in project %s", args[0], p.Name)
			}
			files, err := a.Catalog.ListFiles(cmd.Context(), res.DataCollection.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, files)
			}
			rows := make([][]string, len(files))
			for i, f := range files {
				rows[i] = []string{f.Location, f.RunTag, string(f.Format)}
			}
			printTable(out, []string{"location", "run_tag", "format"}, rows)
			return nil
		},
	}
}
