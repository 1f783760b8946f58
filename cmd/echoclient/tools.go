package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tturner/echoclient/internal/capture"
	"github.com/tturner/echoclient/internal/config"
)

func newInterfacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "List interfaces available for packet capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			ifaces, err := capture.ListInterfaces()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ifaces) == 0 {
				fmt.Fprintln(out, "No capture interfaces found")
				return nil
			}
			for _, iface := range ifaces {
				line := "  " + iface.Name
				if iface.DisplayName != iface.Name {
					line += " (" + iface.DisplayName + ")"
				} else if iface.Description != "" {
					line += " (" + iface.Description + ")"
				}
				fmt.Fprintln(out, line)
				for _, addr := range iface.Addresses {
					fmt.Fprintf(out, "      %s\n", addr)
				}
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config <path>",
		Short: "Write a client config file with the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingFlagError(cmd, "<path>")
			}
			if err := config.WriteDefaultClientConfig(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[0])
			return nil
		},
	}
}
