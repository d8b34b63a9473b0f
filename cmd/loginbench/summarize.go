package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"

	"github.com/thesyncim/loginbench/pkg/results"
)

func summarizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "summarize",
		Usage: "build a CSV table from the artifacts of the last run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "CSV file; - for stdout", Value: "-"},
			&cli.StringFlag{Name: "results", Usage: "results directory"},
			&cli.BoolFlag{Name: "outcomes", Usage: "also print the ledger outcomes of the latest run"},
		},
		Action: summarize,
	}
}

func summarize(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("results"); v != "" {
		cfg.Results.Dir = v
	}

	var apps []string
	for _, a := range cfg.Applications() {
		apps = append(apps, a.Name)
	}
	conds, err := cfg.MatrixConditions()
	if err != nil {
		return err
	}
	labels := make([]string, len(conds))
	for i, c := range conds {
		labels[i] = c.Label()
	}

	writer := results.NewWriter(cfg.Results.Dir, cfg.Scenario.Name)
	rows, err := writer.Summarize(apps, labels)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	if path := cmd.String("output"); path != "-" {
		f, ferr := os.Create(path)
		if ferr != nil {
			return ferr
		}
		defer func() {
			err = multierr.Append(err, f.Close())
		}()
		out = f
	}
	if err := results.WriteCSV(out, rows); err != nil {
		return err
	}

	if path := cfg.Results.LedgerPath(); cmd.Bool("outcomes") && path != "" {
		return printOutcomes(ctx, stdout(cmd), path)
	}
	return nil
}

func printOutcomes(ctx context.Context, w io.Writer, path string) (err error) {
	ledger, err := results.OpenLedger(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, ledger.Close())
	}()

	runID, err := ledger.LatestRun(ctx)
	if err != nil {
		return err
	}
	entries, err := ledger.Entries(ctx, runID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run %s\n", runID)
	fmt.Fprintln(tw, "APP\tCONDITION\tSTATUS\tSTAGE\tLOGIN\tDURATION\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			e.Application, e.Condition, e.Status, e.Stage, e.LoginSuccessful,
			e.Duration.Round(time.Millisecond), firstNonEmpty(e.Error, e.AuditError))
	}
	return tw.Flush()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
