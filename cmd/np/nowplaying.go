package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey-austin/np_relay/internal/core"
)

func nowPlayingCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "nowplaying [station...]",
		Aliases: []string{"np", "now"},
		Short:   "Show what configured stations are playing",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.NowPlaying(cmd.Context(), args)
			if err != nil {
				return err
			}
			if err := app.printer.Print(result); err != nil {
				return err
			}
			if result.AllOffline() {
				return &core.CLIError{Code: core.ExitOffline, Msg: "all stations offline"}
			}
			return nil
		},
	}
}
