package main

import "github.com/spf13/cobra"

func stationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stations",
		Aliases: []string{"ls"},
		Short:   "List configured stations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			result, err := app.service.ListStations(cmd.Context())
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
