// Command relay-agent switches a bank of GPIO relays on MQTT commands and
// acknowledges every command on a status topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sweeney/relay-agent/internal/command"
	"github.com/sweeney/relay-agent/internal/config"
	"github.com/sweeney/relay-agent/internal/logging"
	"github.com/sweeney/relay-agent/internal/logic"
	"github.com/sweeney/relay-agent/internal/mqtt"
	"github.com/sweeney/relay-agent/internal/relay"
	"github.com/sweeney/relay-agent/internal/status"
	"github.com/sweeney/relay-agent/internal/telemetry"
	"github.com/sweeney/relay-agent/internal/web"
)

// statusInterval is how often the tracker's connection state is refreshed.
const statusInterval = 2 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// options holds command-line flags. Only flags set explicitly override
// the config file.
type options struct {
	configPath string
	broker     string
	httpAddr   string
	heartbeat  time.Duration
	logLevel   string
	printState bool

	set *pflag.FlagSet
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("relay-agent", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", "", "path to YAML config file (defaults only if empty)")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker address, overrides mqtt.broker")
	fs.StringVar(&o.httpAddr, "http", "", "HTTP status address, overrides http (empty to disable)")
	fs.DurationVar(&o.heartbeat, "heartbeat", 0, "heartbeat interval, overrides heartbeat (0 to disable)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&o.printState, "print-state", false, "print relay states and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	o.set = fs
	return o, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.set.Changed("broker") {
		cfg.MQTT.Broker = o.broker
	}
	if o.set.Changed("http") {
		cfg.HTTP = o.httpAddr
	}
	if o.set.Changed("heartbeat") {
		cfg.Heartbeat = o.heartbeat
	}
	if o.set.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	table, err := logic.NewTable(len(cfg.GPIO.Lines), cfg.Interlocks...)
	if err != nil {
		return fmt.Errorf("interlocks: %w", err)
	}

	bank, err := relay.NewRealBank(cfg.GPIO.Chip, cfg.GPIO.Lines, cfg.GPIO.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	closeBank := sync.OnceValue(bank.Close)
	defer closeBank()

	coord, err := logic.NewCoordinator(bank, table)
	if err != nil {
		return err
	}

	if opts.printState {
		states, err := coord.States()
		if err != nil {
			return fmt.Errorf("read relays: %w", err)
		}
		fmt.Fprintln(stdout, formatStates(states, cfg.GPIO.Lines))
		return nil
	}

	codec, err := command.NewCodec(cfg.MQTT.PayloadFormat)
	if err != nil {
		return err
	}
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
	routes := command.Routes{
		Discrete: topics.Discrete(),
		Grouped:  topics.Grouped(),
		Shutdown: topics.Shutdown(),
	}
	interp := command.NewInterpreter(coord, codec, command.Options{
		Routes:           routes,
		GroupedLegacyOff: cfg.MQTT.GroupedLegacyOff,
		Logger:           logger.With("component", "command"),
	})

	tracker := status.NewTracker(time.Now(), coord.Len(), status.Config{
		Broker:        cfg.MQTT.Broker,
		ClientID:      cfg.MQTT.ClientID,
		TopicPrefix:   cfg.MQTT.TopicPrefix,
		PayloadFormat: codec.Name(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		HTTPAddr:      cfg.HTTP,
		Lines:         cfg.GPIO.Lines,
		Interlocks:    table.Rules(),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	recorder := newRecorder(cfg, logger)
	defer recorder.Close()

	client, err := mqtt.NewRealClient(mqtt.ClientOptions{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		Topics:     topics,
		QoS:        byte(cfg.MQTT.QoS),
		BufferSize: cfg.MQTT.BufferSize,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer client.Close()

	inbox := mqtt.NewInbox()
	defer inbox.Close()
	err = client.Subscribe(routes.Topics(), inbox.Push)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	tracker.SetMQTT(client.IsConnected(), client.State().String())
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", cfg.HTTP)
	}

	logger.Info("started",
		"broker", cfg.MQTT.Broker,
		"client_id", cfg.MQTT.ClientID,
		"relays", coord.Len(),
		"topics", routes.Topics(),
		"payload_format", codec.Name(),
		"heartbeat", cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}
	refresh := time.NewTicker(statusInterval)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	loop := &agent{
		interp:     interp,
		coord:      coord,
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
	loopErr := loop.run(inbox.C(), heartbeat, refresh.C, sigCh)

	if err := closeBank(); err != nil {
		logger.Error("failed to release relays", "error", err)
	} else {
		logger.Info("relays released")
	}
	return loopErr
}

// agent owns the coordinator. Every command is applied from run's
// goroutine, in arrival order.
type agent struct {
	interp     *command.Interpreter
	coord      *logic.Coordinator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	recorder   telemetry.Recorder
	logger     *slog.Logger
	now        func() time.Time
}

func (a *agent) run(msgs <-chan mqtt.Message, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			a.shutdown(s)
			return nil

		case m := <-msgs:
			a.handle(m)

		case <-heartbeat:
			if net := readNetworkInfo(); net != nil {
				a.tracker.SetNetwork(net)
			}
			a.refreshStatus()
			snap := a.tracker.Snapshot()
			a.logger.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"success", snap.Counts.Success,
				"failed", snap.Counts.Failed,
				"decode_failed", snap.Counts.DecodeFailed)
			event := mqtt.SystemEvent{
				Timestamp:  a.now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := a.publisher.PublishSystem(event); err != nil {
				a.logger.Warn("heartbeat publish error", "error", err)
			}

		case <-refresh:
			a.refreshStatus()
		}
	}
}

func (a *agent) handle(m mqtt.Message) {
	r := a.interp.Process(m.Topic, m.Payload)

	payload, err := a.interp.Codec().EncodeAck(r.Ack)
	if err != nil {
		a.logger.Error("encode ack failed", "command_id", r.Ack.CommandID, "error", err)
	} else if err := a.publisher.PublishAck(payload); err != nil {
		// Don't crash on publish failure
		a.logger.Warn("ack publish error", "command_id", r.Ack.CommandID, "error", err)
	}

	a.recorder.RecordTransitions(r.Transitions)
	a.tracker.RecordCommand(r, a.now())
	a.refreshStatus()
}

func (a *agent) shutdown(s os.Signal) {
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	a.logger.Info("shutting down", "signal", signalName)

	ts, err := a.coord.Shutdown()
	if err != nil {
		a.logger.Error("switching relays off failed", "error", err)
	}
	a.recorder.RecordTransitions(ts)
	a.refreshStatus()

	snap := a.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  a.now(),
		Event:      "SHUTDOWN",
		Reason:     signalName,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
	}
	if err := a.publisher.PublishSystem(event); err != nil {
		a.logger.Warn("failed to publish shutdown event", "error", err)
	} else {
		a.logger.Info("published shutdown event")
	}
}

// refreshStatus copies relay and connection state into the tracker.
func (a *agent) refreshStatus() {
	if states, err := a.coord.States(); err != nil {
		a.logger.Warn("read relay states failed", "error", err)
	} else {
		a.tracker.SetRelays(states)
	}
	if a.mqttStatus != nil {
		a.tracker.SetMQTT(a.mqttStatus.IsConnected(), a.mqttStatus.State().String())
	}
}

func newRecorder(cfg *config.Config, logger *slog.Logger) telemetry.Recorder {
	if !cfg.Influx.Enabled {
		return telemetry.Nop{}
	}
	host, _ := os.Hostname()
	r, err := telemetry.NewInfluxRecorder(telemetry.InfluxOptions{
		URL:    cfg.Influx.URL,
		Token:  cfg.Influx.Token,
		Org:    cfg.Influx.Org,
		Bucket: cfg.Influx.Bucket,
		Lines:  cfg.GPIO.Lines,
		Host:   host,
		Logger: logger,
	})
	if err != nil {
		logger.Warn("influxdb unavailable, telemetry disabled", "error", err)
		return telemetry.Nop{}
	}
	return r
}

func formatStates(states []logic.State, lines []int) string {
	parts := make([]string, len(states))
	for i, s := range states {
		if i < len(lines) {
			parts[i] = fmt.Sprintf("%d(gpio%d): %s", i, lines[i], s)
		} else {
			parts[i] = fmt.Sprintf("%d: %s", i, s)
		}
	}
	return strings.Join(parts, ", ")
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
