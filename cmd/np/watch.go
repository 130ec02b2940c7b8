package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/np_relay/internal/adapters/mqtt"
	"github.com/mikey-austin/np_relay/internal/core"
	embeddedmqtt "github.com/mikey-austin/np_relay/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/np_relay/internal/npd"
	"github.com/mikey-austin/np_relay/pkg/np"
)

func relayedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "relayed",
		Short: "Show the last results npd published to MQTT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			client, err := connectBroker(app.cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			messages, err := client.Snapshot(cmd.Context())
			if err != nil {
				return core.WrapError(core.ExitRuntime, "read relayed results", err)
			}
			if len(messages) == 0 {
				return &core.CLIError{Code: core.ExitNotFound, Msg: "no relayed results"}
			}
			result := core.NowPlayingResult{Outcomes: make([]np.PollOutcome, 0, len(messages))}
			for _, message := range messages {
				result.Outcomes = append(result.Outcomes, message.Outcome())
			}
			return app.printer.Print(result)
		},
	}
}

func watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow results as npd publishes them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			client, err := connectBroker(app.cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			messages, errs := client.Watch(cmd.Context())
			for {
				select {
				case message, ok := <-messages:
					if !ok {
						return nil
					}
					result := core.NowPlayingResult{Outcomes: []np.PollOutcome{message.Outcome()}}
					if err := app.printer.Print(result); err != nil {
						return err
					}
				case err, ok := <-errs:
					if ok && err != nil {
						return core.WrapError(core.ExitRuntime, "watch", err)
					}
					if !ok {
						errs = nil
					}
				}
			}
		},
	}
}

func connectBroker(cfg npd.Config) (*mqtt.Client, error) {
	broker := cfg.MQTT.Broker
	if broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		listen := cfg.Modules.EmbeddedMQTT.Listen
		if listen == "" {
			listen = embeddedmqtt.DefaultListen
		}
		embedded := embeddedmqtt.Config{
			TLSCA:   cfg.Modules.EmbeddedMQTT.TLSCA,
			TLSCert: cfg.Modules.EmbeddedMQTT.TLSCert,
			TLSKey:  cfg.Modules.EmbeddedMQTT.TLSKey,
		}
		broker = embeddedmqtt.BrokerURL(listen, embedded.TLSEnabled())
	}
	if broker == "" {
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: "mqtt broker not configured"}
	}
	client, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: broker,
		ClientID:  fmt.Sprintf("np-%d", time.Now().UnixNano()),
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
		TLSCA:     cfg.MQTT.TLSCA,
		TLSCert:   cfg.MQTT.TLSCert,
		TLSKey:    cfg.MQTT.TLSKey,
		TopicBase: cfg.MQTT.TopicBase,
	})
	if err != nil {
		return nil, core.WrapError(core.ExitRuntime, "connect "+broker, err)
	}
	return client, nil
}
