package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasergrbl/gcode"
)

func (a *app) previewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview FILE",
		Short: "Print the toolpath summary of a G-code file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := <-gcode.Load(cmd.Context(), args[0], a.cfg.GCode.Options(), a.log)
			if res.Err != nil {
				return res.Err
			}
			job := res.Job

			var cutting int
			for _, s := range job.Segments {
				if s.LaserOn {
					cutting++
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "commands:  %d\n", job.Commands)
			fmt.Fprintf(out, "segments:  %d (%d with laser on)\n", len(job.Segments), cutting)
			fmt.Fprintf(out, "bounds:    X %.3f..%.3f  Y %.3f..%.3f\n",
				job.Bounds.Min.X, job.Bounds.Max.X, job.Bounds.Min.Y, job.Bounds.Max.Y)
			fmt.Fprintf(out, "size:      %.3f x %.3f\n", job.Bounds.Width(), job.Bounds.Height())
			fmt.Fprintf(out, "estimate:  %s\n", job.EstimatedTime().Round(time.Second))
			return nil
		},
	}
}
