package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/pkg/np"
)

func probeCommand() *cobra.Command {
	var (
		protocol string
		mount    string
	)

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Detect the server protocol at a URL and show what it is playing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			hint, err := np.ParseProtocolKind(protocol)
			if err != nil {
				return core.WrapError(core.ExitUsage, "protocol", err)
			}
			result, err := app.service.Probe(cmd.Context(), args[0], hint, mount)
			if err != nil {
				return err
			}
			if err := app.printer.Print(result); err != nil {
				return err
			}
			if !result.Outcome.Result.IsOnline {
				return &core.CLIError{Code: core.ExitOffline, Msg: "station offline"}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&protocol, "protocol", "p", "auto", "icecast|shoutcast2|shoutcast1|azuracast|auto")
	cmd.Flags().StringVarP(&mount, "mount", "m", "", "mount point or station shortcode")

	return cmd
}
