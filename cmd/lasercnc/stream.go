package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasergrbl/ledger"
)

func (a *app) streamCmd() *cobra.Command {
	var force bool
	var repeat int
	cmd := &cobra.Command{
		Use:   "stream FILE",
		Short: "Send a G-code file to the controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			c := a.newController()
			defer c.Close()

			ctx := cmd.Context()
			if err := a.connect(ctx, c, a.cfg.Grbl.Port, a.cfg.Grbl.BaudRate); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			cancel := c.ledger.Subscribe(func(ch ledger.Change) {
				if ch.Entry.State.IsMessage() || ch.Entry.State == ledger.Errored {
					fmt.Fprintf(out, "%6d %-8s %s\n", ch.Entry.Seq, ch.Entry.State, ch.Entry.Text)
				}
			})
			defer cancel()

			opt := a.cfg.Job.Options()
			opt.Force = force
			if repeat > 0 {
				opt.Repeat = repeat
			}
			opt.Progress = func(sent, total int) {
				if sent == total || sent%100 == 0 {
					fmt.Fprintf(out, "sent %d/%d\n", sent, total)
				}
			}

			err = c.m.Run(ctx, f, opt)
			if ctx.Err() != nil {
				// interrupted: halt the machine
				c.m.Reset()
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Start even if the machine is not at work zero.")
	cmd.Flags().IntVar(&repeat, "repeat", 0, "Run the file this many times.")
	return cmd
}
