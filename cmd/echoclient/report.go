package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/echoclient/internal/app"
)

type reportFlags struct {
	sent     int
	json     bool
	pcapFile string
	port     int
}

func newReportCmd() *cobra.Command {
	flags := &reportFlags{}

	cmd := &cobra.Command{
		Use:   "report <timings.csv>",
		Short: "Recompute session statistics from a timings CSV",
		Long: `Read a timings CSV written by the client and print the same statistics the
client logged at the end of the session.

The CSV only holds successful round trips, so the number of packets sent is
read from the run.json written beside it, or taken from the highest packet
number when there is none. --sent overrides both. With --pcap and
--port the capture of the session is summarized as well.`,
		Example: `  echoclient report logs/echo_client_20260101_120000_timings.csv
  echoclient report timings.csv --sent 1000 --json
  echoclient report timings.csv --pcap session.pcap --port 7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingFlagError(cmd, "<timings.csv>")
			}
			return app.RunReport(app.ReportOptions{
				TimingsPath: args[0],
				Sent:        flags.sent,
				JSON:        flags.json,
				PCAPFile:    flags.pcapFile,
				Port:        flags.port,
				Stdout:      cmd.OutOrStdout(),
			})
		},
	}

	cmd.Flags().IntVar(&flags.sent, "sent", 0, "Packets sent (default: from run.json, else highest packet number)")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&flags.pcapFile, "pcap", "", "PCAP of the session to summarize")
	cmd.Flags().IntVar(&flags.port, "port", 0, "Server port used in the capture")
	return cmd
}
