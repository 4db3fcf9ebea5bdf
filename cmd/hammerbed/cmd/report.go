package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/hammerbed/datarecording"
)

var reportCmd = &cobra.Command{
	Use:   "report <database>",
	Short: "Summarize the runs recorded in a database.",
	Long: "`report` reads a database written by `run --db` and prints one " +
		"line per run, with the number of trials and flips.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return reportDatabase(context.Background(), os.Stdout, args[0])
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// reportDatabase prints the runs recorded in the database at path.
func reportDatabase(ctx context.Context, w io.Writer, path string) error {
	reader, err := datarecording.NewReader(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	return printReport(ctx, w, reader)
}

func printReport(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
) error {
	reader.MapTable(datarecording.RunsTable, datarecording.RunEntry{})
	reader.MapTable(datarecording.TrialsTable, datarecording.TrialEntry{})
	reader.MapTable(datarecording.BitflipsTable, datarecording.BitflipEntry{})

	runs, _, err := reader.Query(ctx, datarecording.RunsTable,
		datarecording.QueryParams{OrderBy: "StartTime"})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTART\tPATTERN\tOP\tCACHE\tTRIALS\tFLIPS\t1->0\t0->1")

	for _, r := range runs {
		run := r.(*datarecording.RunEntry)
		byRun := datarecording.QueryParams{
			Where: "RunID = ?",
			Args:  []any{run.RunID},
			Limit: 1,
		}

		_, trials, err := reader.Query(ctx, datarecording.TrialsTable, byRun)
		if err != nil {
			return err
		}

		_, flips, err := reader.Query(ctx, datarecording.BitflipsTable, byRun)
		if err != nil {
			return err
		}

		_, down, err := reader.Query(ctx, datarecording.BitflipsTable,
			datarecording.QueryParams{
				Where: "RunID = ? AND Direction = ?",
				Args:  []any{run.RunID, "1->0"},
				Limit: 1,
			})
		if err != nil {
			return err
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			run.RunID, run.StartTime, run.Pattern, run.Operation, run.CacheOp,
			trials, flips, down, flips-down)
	}

	return tw.Flush()
}
