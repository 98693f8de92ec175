package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dclake/internal/domain"
	"dclake/internal/service/join"
)

func newJoinCmd(rt *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Validate, preview and run declarative joins",
	}
	cmd.AddCommand(newJoinListCmd(rt))
	cmd.AddCommand(newJoinValidateCmd(rt))
	cmd.AddCommand(newJoinPreviewCmd(rt))
	cmd.AddCommand(newJoinPersistCmd(rt))
	cmd.AddCommand(newJoinRunCmd(rt))
	cmd.AddCommand(newJoinScheduleCmd(rt))
	return cmd
}

func newJoinListCmd(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the project's joins in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			p, err := a.Catalog.ResolveProject(cmd.Context(), "")
			if err != nil {
				return err
			}
			levels, err := join.ResolveJoinOrder(p)
			if err != nil {
				return err
			}
			level := make(map[string]int)
			for i, names := range levels {
				for _, n := range names {
					level[n] = i
				}
			}

			type row struct {
				Name    string `json:"name"`
				Level   int    `json:"level"`
				Left    string `json:"left_dc"`
				Right   string `json:"right_dc"`
				On      string `json:"on"`
				How     string `json:"how"`
				Persist bool   `json:"persist"`
				ID      string `json:"id,omitempty"`
			}
			rows := make([]row, len(p.Joins))
			for i, j := range p.Joins {
				how := j.How
				if how == "" {
					how = string(domain.JoinInner)
				}
				rows[i] = row{j.Name, level[j.Name], j.LeftDC, j.RightDC, strings.Join(j.OnColumns, ","), how, j.Persist, j.ID}
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, rows)
			}
			cells := make([][]string, len(rows))
			for i, r := range rows {
				cells[i] = []string{r.Name, strconv.Itoa(r.Level), r.Left, r.Right, r.On, r.How, strconv.FormatBool(r.Persist), r.ID}
			}
			printTable(out, []string{"name", "level", "left", "right", "on", "how", "persist", "id"}, cells)
			return nil
		},
	}
}

func newJoinValidateCmd(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Check that both sides of a join resolve and carry the key columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			p, def, err := a.Joins.Definition(cmd.Context(), "", args[0])
			if err != nil {
				return err
			}
			res, err := a.Joins.Validate(cmd.Context(), p, def)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printSides(out, res.Left, res.Right)
				printMessages(out, "Errors", res.Errors)
				printMessages(out, "Warnings", res.Warnings)
				if res.IsValid {
					_, _ = fmt.Fprintf(out, "Join %s is valid.\n", res.JoinName)
				}
			}
			if !res.IsValid {
				return errSilent
			}
			return nil
		},
	}
}

func printSides(w io.Writer, left, right domain.SideStatus) {
	rows := make([][]string, 0, 2)
	for _, s := range []struct {
		name string
		st   domain.SideStatus
	}{{"left", left}, {"right", right}} {
		rows = append(rows, []string{
			s.name, s.st.Reference, s.st.DataCollectionID,
			strconv.FormatBool(s.st.Exists), strconv.FormatBool(s.st.Processed),
			strings.Join(s.st.MissingColumns, ","),
		})
	}
	printTable(w, []string{"side", "reference", "dc_id", "exists", "processed", "missing"}, rows)
}

func newJoinPreviewCmd(rt *cliState) *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "preview <name>",
		Short: "Execute a join in memory and report key overlap and a sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			p, def, err := a.Joins.Definition(cmd.Context(), "", args[0])
			if err != nil {
				return err
			}
			res, err := a.Joins.Preview(cmd.Context(), p, def, sample)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, res)
			}
			printPreview(out, res)
			return nil
		},
	}

	cmd.Flags().IntVar(&sample, "sample", join.DefaultSampleSize, "Number of sample rows")
	return cmd
}

func printPreview(w io.Writer, res *domain.JoinPreviewResult) {
	m := res.Metadata
	fields := map[string]string{
		"how":           string(m.How),
		"join_columns":  strings.Join(m.JoinColumns, ","),
		"left":          fmt.Sprintf("%d rows x %d columns", m.LeftRows, m.LeftColumns),
		"right":         fmt.Sprintf("%d rows x %d columns", m.RightRows, m.RightColumns),
		"result":        fmt.Sprintf("%d rows x %d columns", m.ResultRows, m.ResultColumns),
		"distinct_keys": fmt.Sprintf("left %d, right %d, shared %d", res.LeftDistinctKeys, res.RightDistinctKeys, res.OverlapKeys),
		"granularity":   "not applied",
	}
	if m.GranularityApplied {
		fields["granularity"] = "aggregated " + m.AggregatedSide + " side"
	}
	if len(m.CastColumns) > 0 {
		fields["cast_columns"] = strings.Join(m.CastColumns, ",")
	}
	if len(m.DroppedColumns) > 0 {
		fields["dropped_columns"] = strings.Join(m.DroppedColumns, ",")
	}
	printDetail(w, fields)

	_, _ = fmt.Fprintln(w)
	rows := make([][]string, len(res.Sample))
	for i, rec := range res.Sample {
		row := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			row[j] = formatValue(rec[c])
		}
		rows[i] = row
	}
	printTable(w, res.Columns, rows)
	printMessages(w, "Warnings", append(append([]string(nil), m.Warnings...), res.Warnings...))
}

func newJoinPersistCmd(rt *cliState) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "persist <name>",
		Short: "Execute a join and store its result as a derived data collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			p, def, err := a.Joins.Definition(cmd.Context(), "", args[0])
			if err != nil {
				return err
			}
			res, err := a.Joins.Persist(cmd.Context(), p, def, join.PersistOptions{Overwrite: overwrite})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return printJSON(out, res)
			}
			printResult(out, res.Result)
			printMessages(out, "Warnings", res.Warnings)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing join result")
	return cmd
}

func printResult(w io.Writer, r domain.JoinResultMeta) {
	printDetail(w, map[string]string{
		"dc_id":       r.DataCollectionID,
		"tag":         r.Tag,
		"location":    r.Location,
		"rows":        strconv.FormatInt(r.Rows, 10),
		"columns":     strconv.Itoa(r.Columns),
		"size_bytes":  strconv.FormatInt(r.SizeBytes, 10),
		"executed_at": r.ExecutedAt.Format(time.RFC3339),
	})
}

func newJoinRunCmd(rt *cliState) *cobra.Command {
	var opts join.RunOptions

	cmd := &cobra.Command{
		Use:   "run [name]",
		Short: "Run every join of the project in dependency order, or one join",
		Long: "Runs joins level by level so that joins consuming another join's result run after it.\n" +
			"Joins with persist disabled are previewed only. Failures are reported per join.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				opts.Join = args[0]
			}
			report, err := a.Joins.RunProject(cmd.Context(), "", opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}
			if len(report.Errors) > 0 {
				return errSilent
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.AutoProcess, "auto-process", false, "Process missing canonical tables of join inputs first")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Preview every join without persisting")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace existing join results")
	cmd.Flags().IntVar(&opts.SampleSize, "sample", join.DefaultSampleSize, "Number of sample rows in previews")
	return cmd
}

func printReport(w io.Writer, report *domain.JoinBatchReport) {
	rows := make([][]string, 0, len(report.Processed)+len(report.Skipped)+len(report.Errors))
	add := func(outcome string, entries []domain.JoinBatchEntry) {
		for _, e := range entries {
			rows = append(rows, []string{e.Name, outcome, e.Message})
		}
	}
	add("processed", report.Processed)
	add("skipped", report.Skipped)
	add("error", report.Errors)
	printTable(w, []string{"join", "outcome", "message"}, rows)

	var warnings []string
	for _, group := range [][]domain.JoinBatchEntry{report.Processed, report.Skipped} {
		for _, e := range group {
			for _, msg := range e.Warnings {
				warnings = append(warnings, e.Name+": "+msg)
			}
		}
	}
	printMessages(w, "Warnings", warnings)
	_, _ = fmt.Fprintf(w, "Status: %s\n", report.Status)
}

func newJoinScheduleCmd(rt *cliState) *cobra.Command {
	var opts join.RunOptions

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run joins on their cron schedules until interrupted",
		Long: "Registers every join with a schedule field and runs it when due, replacing\n" +
			"its previous result. Stops on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := rt.open(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := join.NewScheduler(a.Joins, "", opts, a.Logger.With("component", "scheduler"))
			if err := sched.Start(ctx); err != nil {
				return err
			}
			entries := sched.Entries()
			if len(entries) == 0 {
				sched.Stop()
				return domain.ErrValidation("no join in the project has a schedule")
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := printJSON(out, entries); err != nil {
					sched.Stop()
					return err
				}
			} else {
				rows := make([][]string, len(entries))
				for i, e := range entries {
					rows[i] = []string{e.Name, e.Schedule, e.Next.Format(time.RFC3339)}
				}
				printTable(out, []string{"join", "schedule", "next"}, rows)
			}

			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.AutoProcess, "auto-process", true, "Process missing canonical tables of join inputs first")
	cmd.Flags().IntVar(&opts.SampleSize, "sample", join.DefaultSampleSize, "Number of sample rows in previews")
	return cmd
}
