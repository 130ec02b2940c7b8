package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/np_relay/internal/core"
)

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Ask supervisord whether the streaming servers are running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.Check(cmd.Context())
			if err != nil {
				return err
			}
			if err := app.printer.Print(result); err != nil {
				return err
			}
			if !result.Running {
				return &core.CLIError{Code: core.ExitOffline, Msg: "not running"}
			}
			return nil
		},
	}
}
