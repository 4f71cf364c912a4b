package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := enumerator.GetDetailedPortsList()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "(none)")
			}
			for _, p := range ports {
				if p.IsUSB {
					fmt.Fprintf(out, "%s\tUSB %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
					continue
				}
				fmt.Fprintln(out, p.Name)
			}
			return nil
		},
	}
}
