package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/thesyncim/loginbench/pkg/condition"
)

func conditionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conditions",
		Usage: "list the condition labels accepted by --condition",
		Action: func(_ context.Context, cmd *cli.Command) error {
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tDOWNLOAD B/s\tUPLOAD B/s\tLATENCY ms\tCPU x")
			for _, label := range condition.Labels() {
				c, err := condition.Parse(label)
				if err != nil {
					return err
				}
				p := c.Network().Params()
				fmt.Fprintf(tw, "%s\t%.0f\t%.0f\t%.0f\t%.0f\n",
					label, p.DownloadThroughput, p.UploadThroughput, p.Latency, c.CPU().Rate())
			}
			return tw.Flush()
		},
	}
}
