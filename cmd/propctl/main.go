// propctl - escape room prop controller
//
// propctl sits between a microcontroller on a serial line and any number
// of display clients (raw TCP or WebSocket). It keeps the device state
// array, fans state snapshots out to clients, forwards actuation requests
// to the microcontroller and runs scripted zone sequences.
//
// Usage:
//
//	propctl [flags] <serial-device> [port]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/propctl/migrations"

	"github.com/nerrad567/propctl/internal/api"
	"github.com/nerrad567/propctl/internal/controller"
	"github.com/nerrad567/propctl/internal/device"
	"github.com/nerrad567/propctl/internal/effect"
	"github.com/nerrad567/propctl/internal/infrastructure/config"
	"github.com/nerrad567/propctl/internal/infrastructure/database"
	"github.com/nerrad567/propctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/propctl/internal/infrastructure/logging"
	"github.com/nerrad567/propctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/propctl/internal/serial"
	"github.com/nerrad567/propctl/internal/session"
	"github.com/nerrad567/propctl/internal/zone"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// startupCheckTimeout bounds the health checks run before serving.
const startupCheckTimeout = 5 * time.Second

var errUsage = errors.New("usage: propctl [flags] <serial-device> [port]")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options is the parsed command line.
type options struct {
	configPath string
	logLevel   string
	device     string
	port       int
	version    bool
	help       bool
}

// parseArgs reads flags and the positional <serial-device> [port].
// The config path defaults to $PROPCTL_CONFIG.
func parseArgs(args []string, stdout io.Writer) (options, error) {
	var opts options

	flags := pflag.NewFlagSet("propctl", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	flags.StringVarP(&opts.configPath, "config", "c", os.Getenv("PROPCTL_CONFIG"), "path to YAML config file")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	flags.BoolVar(&opts.version, "version", false, "print version and exit")
	flags.Usage = func() {
		fmt.Fprintln(stdout, errUsage.Error())
		fmt.Fprintln(stdout)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			opts.help = true
			return opts, nil
		}
		return opts, err
	}
	if opts.version {
		return opts, nil
	}

	positional := flags.Args()
	if len(positional) > 2 {
		return opts, fmt.Errorf("%w: unexpected argument %q", errUsage, positional[2])
	}
	if len(positional) > 0 {
		opts.device = positional[0]
	}
	if len(positional) == 2 {
		port, err := strconv.Atoi(positional[1])
		if err != nil || port < 1 || port > 65535 {
			return opts, fmt.Errorf("invalid port %q: must be 1-65535", positional[1])
		}
		opts.port = port
	}
	return opts, nil
}

// run is the application proper, separated from main for testability.
// It returns nil on a signal-driven shutdown and an error when startup
// fails or the serial link dies.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseArgs(args, stdout)
	if err != nil {
		return err
	}
	if opts.help {
		return nil
	}
	if opts.version {
		fmt.Fprintf(stdout, "propctl %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	cfg, err := config.Load(opts.configPath,
		config.WithSerialDevice(opts.device),
		config.WithListenPort(opts.port),
		config.WithLogLevel(opts.logLevel),
	)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting propctl",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	health := make(map[string]api.HealthChecker)

	// ─── Journals ─────────────────────────────────────────────────
	var (
		historyRepo *device.SQLiteStateHistoryRepository
		runRepo     *zone.SQLiteRepository
		recorder    *device.HistoryRecorder
	)
	if cfg.Database.Enabled {
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", cfg.Database.Path)
		health["database"] = db

		historyRepo = device.NewSQLiteStateHistoryRepository(db.DB)
		runRepo = zone.NewSQLiteRepository(db.DB)

		if days := cfg.Database.HistoryRetentionDays; days > 0 {
			n, err := historyRepo.PruneHistory(ctx, time.Duration(days)*24*time.Hour)
			if err != nil {
				log.Warn("pruning state history failed", "error", err)
			} else if n > 0 {
				log.Info("state history pruned", "rows", n, "retention_days", days)
			}
		}

		recorder = device.NewHistoryRecorder(historyRepo, log.Component("history"))
		defer func() {
			recorder.Close()
			if n := recorder.Dropped(); n > 0 {
				log.Warn("state history entries dropped", "count", n)
			}
		}()
	} else {
		log.Info("database disabled, journals off")
	}

	// ─── MQTT ─────────────────────────────────────────────────────
	var (
		mqttClient *mqtt.Client
		mirror     *mqttMirror
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		health["mqtt"] = mqttClient

		publisher := mqtt.NewAsyncPublisher(mqttClient, mqttClient.QoS(), mqtt.DefaultEventQueue)
		publisher.SetLogger(log.Component("mqtt"))
		defer func() {
			publisher.Close()
			if n := publisher.Dropped(); n > 0 {
				log.Warn("MQTT zone events dropped", "count", n)
			}
		}()
		mirror = newMQTTMirror(publisher, mqttClient.Topics(), log)
	} else {
		log.Info("MQTT disabled")
	}

	// ─── InfluxDB ─────────────────────────────────────────────────
	var telemetry *influxTelemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		health["influxdb"] = influxClient
		telemetry = &influxTelemetry{writer: influxClient}
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, health); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// ─── Serial link ──────────────────────────────────────────────
	port, err := serial.Open(serial.Config{Device: cfg.Serial.Device, Baud: cfg.Serial.Baud})
	if err != nil {
		return fmt.Errorf("opening serial device: %w", err)
	}
	defer func() {
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing serial device", "error", closeErr)
		}
	}()
	log.Info("serial device open", "device", port.Path(), "baud", cfg.Serial.Baud)

	// ─── Core ─────────────────────────────────────────────────────
	store := device.NewStore(cfg.Devices.Count)

	registry := session.NewRegistry()
	registry.SetLogger(log.Component("session"))

	backlog := session.NewBacklog(cfg.Listener.Backlog)
	backlog.SetLogger(log.Component("listener"))

	ctrl := controller.New(controller.Config{
		Heartbeat:    cfg.Controller.Heartbeat,
		PollInterval: cfg.Controller.PollInterval,
	}, store, registry, backlog, port)
	ctrl.SetLogger(log.Component("controller"))

	effects, err := effect.NewRunner(effectsFromConfig(cfg.Effects))
	if err != nil {
		return fmt.Errorf("loading effects: %w", err)
	}
	effects.SetLogger(log.Component("effect"))

	machine, err := buildZones(cfg.Zones, ctrl, effects)
	if err != nil {
		return fmt.Errorf("loading zones: %w", err)
	}
	machine.SetLogger(log.Component("zone"))
	ctrl.SetZones(machine)

	var zoneObservers zone.Observers
	if recorder != nil {
		ctrl.AddObserver(recorder)
		zoneObservers = append(zoneObservers, zone.NewJournal(runRepo, log.Component("journal")))
	}
	if mirror != nil {
		ctrl.AddObserver(mirror)
		zoneObservers = append(zoneObservers, mirror)

		if err := mqttClient.Subscribe(mqttClient.Topics().AllZoneCommands(), mqttClient.QoS(),
			mqttClient.Topics().ZoneCommandHandler(func(id int) error {
				_, err := machine.Trigger(id, zone.SourceMQTT)
				return err
			})); err != nil {
			return fmt.Errorf("subscribing to zone commands: %w", err)
		}
	}
	if telemetry != nil {
		ctrl.AddObserver(telemetry)
		zoneObservers = append(zoneObservers, telemetry)
	}
	machine.SetObserver(zoneObservers)

	// ─── Client surfaces ──────────────────────────────────────────
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	listenAddr := net.JoinHostPort(cfg.Listener.Host, strconv.Itoa(cfg.Listener.Port))
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		//nolint:errcheck // Serve only returns nil
		backlog.Serve(serveCtx, ln, cfg.Listener.WriteTimeout)
	}()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			WebSocket: cfg.WebSocket,
			Logger:    log.Component("api"),
			States:    ctrl,
			Zones:     machine,
			Clients:   registry,
			Backlog:   backlog,
			Health:    health,
			Version:   version,
		}
		if runRepo != nil {
			deps.Runs = runRepo
			deps.History = historyRepo
		}
		apiServer, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"listen", listenAddr,
		"devices", cfg.Devices.Count,
		"zones", len(cfg.Zones),
		"effects", len(cfg.Effects),
	)

	runErr := ctrl.Run(ctx)
	if runErr != nil {
		log.Error("dispatch loop failed", "error", runErr)
	} else {
		log.Info("shutdown signal received, cleaning up")
	}

	// ─── Shutdown ─────────────────────────────────────────────────
	stopServing()
	<-serveDone

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Controller.DrainTimeout)
	defer cancelDrain()
	if err := machine.Drain(drainCtx); err != nil {
		log.Warn("zone sequences still running at shutdown", "error", err)
	}
	if err := effects.Close(drainCtx); err != nil {
		log.Warn("effects still running at shutdown", "error", err)
	}

	backlog.Drain()
	registry.CloseAll()

	if runErr != nil {
		return fmt.Errorf("dispatch loop: %w", runErr)
	}
	log.Info("propctl stopped")
	return nil
}

// healthCheck runs every registered check once. The first failure aborts
// startup.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func effectsFromConfig(in []config.EffectConfig) []effect.Effect {
	out := make([]effect.Effect, 0, len(in))
	for _, e := range in {
		out = append(out, effect.Effect{
			Name:    e.Name,
			Command: e.Command,
			URL:     e.URL,
			Timeout: e.Timeout,
		})
	}
	return out
}

// buildZones compiles each configured zone script against act and fx and
// registers it on a new machine.
func buildZones(zones []config.ZoneConfig, act zone.Actuator, fx zone.EffectPlayer) (*zone.Machine, error) {
	machine := zone.NewMachine()
	for _, zc := range zones {
		steps := make([]zone.Step, 0, len(zc.Steps))
		for _, s := range zc.Steps {
			steps = append(steps, zone.Step{
				Device: s.Device,
				State:  s.State,
				Delay:  s.Delay,
				Effect: s.Effect,
			})
		}
		seq, err := zone.Script(steps, act, fx)
		if err != nil {
			return nil, fmt.Errorf("zone %d: %w", zc.ID, err)
		}
		if err := machine.Register(zc.ID, zc.Name, seq); err != nil {
			return nil, err
		}
	}
	return machine, nil
}
