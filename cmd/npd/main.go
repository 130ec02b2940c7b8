package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/np_relay/internal/adapters/mqttsink"
	embeddedmqtt "github.com/mikey-austin/np_relay/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/np_relay/internal/modules/relay"
	"github.com/mikey-austin/np_relay/internal/npd"
	"github.com/mikey-austin/np_relay/internal/ports"
)

func main() {
	var (
		configPath  string
		broker      string
		logLevel    string
		logFormat   string
		logOutput   string
		logFile     string
		environment string
		printConfig bool
		dryRun      bool
		once        bool
		moduleOnly  string
	)

	defaultConfig, err := npd.DefaultConfigPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	flag.StringVar(&configPath, "config", defaultConfig, "config file path")
	flag.StringVar(&broker, "broker", "", "MQTT broker URL override")
	flag.StringVar(&logLevel, "log-level", "", "log level override")
	flag.StringVar(&logFormat, "log-format", "", "log format override (console|json)")
	flag.StringVar(&logOutput, "log-output", "", "log output override (stdout|stderr)")
	flag.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flag.StringVar(&environment, "environment", "", "environment override (production|development)")
	flag.StringVar(&moduleOnly, "module", "", "limit to a single module")
	flag.BoolVar(&once, "once", false, "run a single relay cycle and exit")
	flag.BoolVar(&printConfig, "print-config", false, "print resolved config and exit")
	flag.BoolVar(&dryRun, "dry-run", false, "validate config and exit")
	flag.Parse()

	cfg, err := npd.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyOverrides(&cfg, broker, logLevel, logFormat, logOutput, logFile, environment)

	if printConfig {
		printResolvedConfig(os.Stdout, cfg)
		return
	}

	logger, err := npd.NewLogger(npd.LogConfig{
		Level:       cfg.Server.LogLevel,
		Format:      cfg.Server.LogFormat,
		Output:      cfg.Server.LogOutput,
		Environment: cfg.Server.Environment,
		File:        cfg.Server.LogFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	deps, err := npd.BuildDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to build components", zap.Error(err))
		os.Exit(1)
	}
	if dryRun {
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	skipEmbedded := false
	if cfg.Modules.EmbeddedMQTT.Enabled && cfg.MQTT.Enabled && moduleOnly != "embedded_mqtt" && cfg.MQTT.Broker == embeddedBrokerURL(cfg) {
		if err := startEmbeddedBroker(ctx, cfg, logger, cancel); err != nil {
			logger.Error("embedded mqtt failed", zap.Error(err))
			os.Exit(1)
		}
		skipEmbedded = true
	}

	logger.Info("npd starting",
		zap.String("config", configPath),
		zap.String("environment", cfg.Server.Environment),
		zap.String("broker", cfg.MQTT.Broker),
		zap.Int("stations", len(cfg.Stations)),
		zap.Bool("upstream", cfg.Upstream.Enabled),
		zap.Strings("modules", enabledModules(cfg)),
	)

	var mqttClient *mqttsink.Client
	if cfg.MQTT.Enabled && moduleOnly != "embedded_mqtt" {
		mqttClient, err = mqttsink.NewClient(mqttsink.Options{
			BrokerURL: cfg.MQTT.Broker,
			ClientID:  mqttClientID(cfg),
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			TLSCA:     cfg.MQTT.TLSCA,
			TLSCert:   cfg.MQTT.TLSCert,
			TLSKey:    cfg.MQTT.TLSKey,
			Timeout:   2 * time.Second,
			Logger:    logger.With(zap.String("module", "mqtt")),
		})
		if err != nil {
			logger.Error("mqtt connection failed", zap.Error(err))
			os.Exit(1)
		}
		defer mqttClient.Close()
	}

	sinks := buildSinks(cfg, deps, mqttClient, logger)

	if once {
		mod, err := newRelay(cfg, deps, sinks, logger)
		if err != nil {
			logger.Error("failed to build relay", zap.Error(err))
			os.Exit(1)
		}
		if _, err := mod.RunOnce(ctx); err != nil {
			logger.Error("relay cycle failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	modules, err := buildModules(cfg, deps, sinks, logger, moduleOnly, skipEmbedded)
	if err != nil {
		logger.Error("failed to build modules", zap.Error(err))
		os.Exit(1)
	}

	supervisor := npd.Supervisor{Logger: logger}
	if err := supervisor.Run(ctx, modules); err != nil {
		logger.Error("supervisor error", zap.Error(err))
		os.Exit(1)
	}
}

func applyOverrides(cfg *npd.Config, broker string, logLevel string, logFormat string, logOutput string, logFile string, environment string) {
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.Server.LogFormat = logFormat
	}
	if logOutput != "" {
		cfg.Server.LogOutput = logOutput
	}
	if logFile != "" {
		cfg.Server.LogFile = logFile
	}
	if environment != "" {
		cfg.Server.Environment = environment
	}
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" && cfg.Modules.EmbeddedMQTT.Enabled {
		cfg.MQTT.Broker = embeddedBrokerURL(*cfg)
	}
}

func buildSinks(cfg npd.Config, deps npd.Deps, client *mqttsink.Client, logger *zap.Logger) []ports.ResultSink {
	var sinks []ports.ResultSink
	if deps.Upstream != nil {
		sinks = append(sinks, deps.Upstream)
	}
	if client != nil {
		sinks = append(sinks, mqttsink.NewSink(client, cfg.MQTT.TopicBase, byte(cfg.MQTT.QoS), logger.With(zap.String("module", "mqtt"))))
	}
	return sinks
}

func newRelay(cfg npd.Config, deps npd.Deps, sinks []ports.ResultSink, logger *zap.Logger) (*relay.Module, error) {
	return relay.NewModule(logger, deps.Stations, deps.Poller, sinks, deps.Monitor, relay.Config{
		Interval:     time.Duration(cfg.Relay.IntervalMS) * time.Millisecond,
		Concurrency:  cfg.Relay.Concurrency,
		SinkInterval: time.Duration(cfg.Relay.SinkIntervalMS) * time.Millisecond,
		Timeout:      cfg.PollTimeout(),
	})
}

func buildModules(cfg npd.Config, deps npd.Deps, sinks []ports.ResultSink, logger *zap.Logger, moduleOnly string, skipEmbedded bool) ([]npd.ModuleRunner, error) {
	modules := []npd.ModuleRunner{}
	if cfg.Modules.EmbeddedMQTT.Enabled && !skipEmbedded {
		if moduleOnly == "" || moduleOnly == "embedded_mqtt" {
			mod, err := embeddedmqtt.NewModule(logger, embeddedConfig(cfg))
			if err != nil {
				return nil, err
			}
			modules = append(modules, npd.ModuleRunner{
				Name: "embedded_mqtt",
				Run:  mod.Run,
			})
		}
	}

	if cfg.Relay.Enabled {
		if moduleOnly == "" || moduleOnly == "relay" {
			mod, err := newRelay(cfg, deps, sinks, logger)
			if err != nil {
				return nil, err
			}
			if len(sinks) == 0 {
				logger.Warn("relay has no sinks; outcomes are only logged")
			}
			modules = append(modules, npd.ModuleRunner{
				Name: "relay",
				Run:  mod.Run,
			})
		}
	}

	if moduleOnly != "" && len(modules) == 0 {
		return nil, errors.New("no modules enabled")
	}
	return modules, nil
}

func enabledModules(cfg npd.Config) []string {
	out := []string{}
	if cfg.Modules.EmbeddedMQTT.Enabled {
		out = append(out, "embedded_mqtt")
	}
	if cfg.Relay.Enabled {
		out = append(out, "relay")
	}
	return out
}

func printResolvedConfig(w io.Writer, cfg npd.Config) {
	fmt.Fprintf(w,
		"environment=%s log_level=%s log_format=%s log_output=%s log_file=%s stations=%d relay=%t upstream=%t supervisor=%t mqtt=%t broker=%s topic_base=%s\n",
		cfg.Server.Environment,
		cfg.Server.LogLevel,
		cfg.Server.LogFormat,
		cfg.Server.LogOutput,
		cfg.Server.LogFile,
		len(cfg.Stations),
		cfg.Relay.Enabled,
		cfg.Upstream.Enabled,
		cfg.Supervisor.Enabled,
		cfg.MQTT.Enabled,
		cfg.MQTT.Broker,
		cfg.MQTT.TopicBase,
	)
}

func mqttClientID(cfg npd.Config) string {
	if cfg.MQTT.ClientID != "" {
		return cfg.MQTT.ClientID
	}
	return fmt.Sprintf("npd-%d", time.Now().UnixNano())
}

func embeddedConfig(cfg npd.Config) embeddedmqtt.Config {
	return embeddedmqtt.Config{
		Listen:         cfg.Modules.EmbeddedMQTT.Listen,
		TopicBase:      cfg.MQTT.TopicBase,
		AllowAnonymous: cfg.Modules.EmbeddedMQTT.AllowAnonymous,
		Username:       cfg.Modules.EmbeddedMQTT.Username,
		Password:       cfg.Modules.EmbeddedMQTT.Password,
		TLSCA:          cfg.Modules.EmbeddedMQTT.TLSCA,
		TLSCert:        cfg.Modules.EmbeddedMQTT.TLSCert,
		TLSKey:         cfg.Modules.EmbeddedMQTT.TLSKey,
	}
}

func embeddedBrokerURL(cfg npd.Config) string {
	mc := embeddedConfig(cfg)
	listen := mc.Listen
	if listen == "" {
		listen = embeddedmqtt.DefaultListen
	}
	return embeddedmqtt.BrokerURL(listen, mc.TLSEnabled())
}

// startEmbeddedBroker runs the broker outside the supervisor so the MQTT sink
// can connect before the relay starts.
func startEmbeddedBroker(ctx context.Context, cfg npd.Config, logger *zap.Logger, cancel context.CancelFunc) error {
	mod, err := embeddedmqtt.NewModule(logger, embeddedConfig(cfg))
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- mod.Run(ctx)
	}()

	select {
	case <-mod.Ready():
	case err := <-errCh:
		if err == nil {
			err = errors.New("embedded mqtt stopped before it was ready")
		}
		return err
	case <-time.After(3 * time.Second):
		return fmt.Errorf("embedded mqtt not ready at %s", mod.BrokerURL())
	}

	go func() {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("embedded mqtt exited", zap.Error(err))
			cancel()
		}
	}()
	return nil
}
