package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/np_relay/internal/adapters/output"
	"github.com/mikey-austin/np_relay/internal/core"
	"github.com/mikey-austin/np_relay/internal/npd"
)

type app struct {
	service core.Service
	printer output.Printer
	cfg     npd.Config
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand()
	err := root.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(core.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "np",
		Short:        "Now playing for Icecast, SHOUTcast and AzuraCast streams",
		SilenceUsage: true,
	}

	var (
		configPath  string
		timeout     time.Duration
		jsonOut     bool
		logLevel    string
		concurrency int
	)

	defaultConfig, _ := npd.DefaultConfigPath()
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "config file path")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "per-request timeout (default from config, else 3s)")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level for diagnostics on stderr")
	root.PersistentFlags().IntVar(&concurrency, "concurrency", 8, "stations polled at once")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := npd.LoadOptionalConfig(configPath)
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}
		logger, err := npd.NewLogger(npd.LogConfig{Level: logLevel, Output: "stderr", Format: "console"})
		if err != nil {
			return core.WrapError(core.ExitUsage, "log level", err)
		}
		if timeout > 0 {
			cfg.HTTP.TimeoutMS = int(timeout / time.Millisecond)
		}
		deps, err := npd.BuildDeps(cfg, logger)
		if err != nil {
			return core.WrapError(core.ExitRuntime, "setup", err)
		}

		service := core.Service{
			Poller:   deps.Poller,
			Stations: deps.Stations,
			Resolver: core.Resolver{
				Stations: deps.Stations,
				Config: core.Config{
					Aliases:  cfg.Aliases,
					Defaults: core.Defaults{Station: cfg.Defaults.Station},
				},
			},
			Monitor:     deps.Monitor,
			Concurrency: concurrency,
			Timeout:     cfg.PollTimeout(),
		}

		var printer output.Printer = output.HumanPrinter{Out: cmd.OutOrStdout()}
		if jsonOut {
			printer = output.JSONPrinter{Out: cmd.OutOrStdout()}
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			cfg:     cfg,
		}))
		return nil
	}

	root.AddCommand(nowPlayingCommand())
	root.AddCommand(probeCommand())
	root.AddCommand(stationsCommand())
	root.AddCommand(checkCommand())
	root.AddCommand(relayedCommand())
	root.AddCommand(watchCommand())
	return root
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}
