package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fowlengine/missioncore/internal/api"
	"github.com/fowlengine/missioncore/internal/config"
	"github.com/fowlengine/missioncore/internal/dispatcher"
	"github.com/fowlengine/missioncore/internal/engine"
	"github.com/fowlengine/missioncore/internal/geo"
	"github.com/fowlengine/missioncore/internal/handlers"
	"github.com/fowlengine/missioncore/internal/influx"
	"github.com/fowlengine/missioncore/internal/logging"
	"github.com/fowlengine/missioncore/internal/mission"
	"github.com/fowlengine/missioncore/internal/monitor"
	intOtel "github.com/fowlengine/missioncore/internal/otel"
	"github.com/fowlengine/missioncore/internal/storage"
	"github.com/fowlengine/missioncore/internal/util"
	"github.com/fowlengine/missioncore/pkg/hostapi"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ExtensionName string = "missioncore"
)

// file paths
var (
	// ConfigDir holds missioncore.cfg.json. MISSIONCORE_CONFIG_DIR overrides
	// the working directory.
	ConfigDir string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger feeds the dispatcher and the influx manager
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// Services
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	influxManager   *influx.Manager
	extension       *hostapi.Extension

	// Storage backend
	storageBackend storage.Backend
)

func main() {
	args := os.Args[1:]
	command := "run"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch command {
	case "run":
		err = runHost(os.Stdin, os.Stdout)
	case "replay":
		err = replayCommand(args, os.Stdout)
	case "validate":
		err = validateCommand(args, os.Stdout)
	case "migratebackups":
		err = migrateCommand()
	case "version":
		fmt.Println(CurrentVersion, BuildDate)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

const usage = `Usage: missioncore [command]

Commands:
  run                        answer host calls read from stdin (default)
  replay <journal> <layout>  re-run a session journal and compare digests
  validate <layout>          check a mission layout
  migratebackups             copy SQLite session dumps into Postgres
  version                    print the version
`

// setupLogging loads the config and directs logs to the log file. Stdout
// carries host responses, so logs never go there.
func setupLogging() {
	ConfigDir = os.Getenv("MISSIONCORE_CONFIG_DIR")
	if ConfigDir == "" {
		ConfigDir = "."
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", ConfigDir)
	}

	level := config.GetString("logLevel")
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		Logger.Warn("Failed to create logs directory", "path", logsDir, "error", err)
	}

	var out io.Writer = os.Stderr
	LogFilePath = logging.LogFilePath(logsDir, ExtensionName, SessionStartTime)
	f, err := os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	} else {
		LogFile = f
		out = f
	}

	if otelCfg := config.GetOTelConfig(); otelCfg.Enabled {
		OTelProvider, err = intOtel.New(context.Background(), intOtel.Config{
			ServiceName:  otelCfg.ServiceName,
			Version:      CurrentVersion,
			BatchTimeout: otelCfg.BatchTimeout,
			Output:       out,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		}
	}

	var extra []slog.Handler
	if gl := config.GetGraylogConfig(); gl.Enabled {
		var lvl slog.Level
		_ = lvl.UnmarshalText([]byte(level))
		h, err := logging.NewGelfHandler(gl.Address, ExtensionName, lvl)
		if err != nil {
			Logger.Error("Failed to set up GELF output", "address", gl.Address, "error", err)
		} else {
			extra = append(extra, h)
		}
	}

	SlogManager.WithContext(func() logging.MissionContext {
		if handlerService != nil {
			return handlerService.LogContext()
		}
		return logging.MissionContext{}
	})
	SlogManager.Setup(out, level, OTelProvider.LoggerProvider(), extra...)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion)

	zlvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		zlvl = zerolog.InfoLevel
	}
	ZLogger = zerolog.New(out).Level(zlvl).With().Timestamp().Str("ext", ExtensionName).Logger()
}

// engineConfig gathers the pipeline tunables from the config.
func engineConfig() engine.Config {
	return engine.Config{
		Ownership:   config.GetOwnershipConfig(),
		Logistics:   config.GetLogisticsConfig(),
		FireSupport: config.GetFireSupportConfig(),
		Victory:     config.GetVictoryConfig(),
	}
}

// dbBackend is implemented by the SQL storage backends.
type dbBackend interface {
	DB() *gorm.DB
}

// startServices wires storage, metrics, the handler service and the
// dispatcher the host calls go through.
func startServices() error {
	storageCfg := config.GetStorageConfig()
	backend, err := createStorageBackend(storageCfg, Logger)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", storageCfg.Type, err)
	}
	storageBackend = backend
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)

	logsDir := config.GetString("logsDir")
	influxManager = influx.NewManager(ZLogger, filepath.Join(logsDir, "influx_backup.lp.gz"))
	if err := influxManager.Connect(config.GetInfluxConfig()); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Warn("InfluxDB setup failed", "error", err)
		}
		influxManager = nil
	}

	var uploader handlers.Uploader
	if serverURL := config.GetString("api.serverUrl"); serverURL != "" {
		client := api.New(serverURL, config.GetString("api.apiKey"))
		uploader = client
		go checkServerStatus(client)
	}

	geoCfg := config.GetGeoConfig()
	var journalDir string
	if jc := config.GetJournalConfig(); jc.Enabled {
		journalDir = jc.Dir
	}

	handlerService = handlers.NewService(handlers.Dependencies{
		Backend:    storageBackend,
		Uploader:   uploader,
		Influx:     influxManager,
		Logger:     Logger,
		Engine:     engineConfig(),
		Projector:  geo.NewProjector(geoCfg.EPSG, geoCfg.FalseEasting, geoCfg.FalseNorthing),
		JournalDir: journalDir,
		UploadTag:  config.GetString("api.uploadTag"),
		Version:    CurrentVersion,
		BuildDate:  BuildDate,
	}, mission.NewContext())

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger).WithContext(handlerService.LogContext))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	eventDispatcher = d
	registerLifecycleHandlers(d)
	handlerService.RegisterHandlers(d)
	extension = hostapi.NewExtension(d, CurrentVersion)
	Logger.Info("Dispatcher initialized", "commands", len(d.Commands()))

	var db *gorm.DB
	if b, ok := storageBackend.(dbBackend); ok {
		db = b.DB()
	}
	monitorService = monitor.NewService(monitor.Dependencies{
		DB:        db,
		Logger:    Logger,
		Engine:    handlerService,
		Backend:   storageBackend,
		Influx:    influxManager,
		StatusDir: logsDir,
		Interval:  config.GetDuration("monitor.interval"),
	})
	if db != nil && storageCfg.Type == "postgres" && config.GetBool("db.timescale") {
		if err := monitorService.ValidateHypertables(map[string][]string{
			"ticks":               {"session_id"},
			"engine_performances": {"session_id"},
		}); err != nil {
			Logger.Error("Failed to set up hypertables", "error", err)
		}
	}
	return monitorService.Start()
}

// registerLifecycleHandlers registers system command handlers with the dispatcher
func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":GETDIR:LOG:", func(e dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	// script logs - buffered, the host never waits on them
	d.Register(":LOG:", func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 2 {
			return nil, fmt.Errorf("expected function, message and optional level")
		}
		util.FixArgs(e.Args)
		level := "INFO"
		if len(e.Args) > 2 {
			level = e.Args[2]
		}
		SlogManager.WriteLog(e.Args[0], e.Args[1], level)
		return nil, nil
	}, dispatcher.Buffered(500))

	d.Register(":FLUSH:", func(e dispatcher.Event) (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
		return "ok", SlogManager.Flush(ctx)
	})
}

// checkServerStatus logs whether the session archive answers.
func checkServerStatus(c *api.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Healthcheck(ctx); err != nil {
		Logger.Info("Session archive is offline", "error", err)
		return
	}
	Logger.Info("Session archive is online")
}

// shutdown ends a running session and closes every service in reverse order.
func shutdown() {
	if monitorService != nil {
		monitorService.Stop()
	}
	if handlerService != nil {
		if err := handlerService.Close(); err != nil {
			Logger.Error("Failed to end running mission", "error", err)
		}
	}
	if eventDispatcher != nil {
		eventDispatcher.Close()
	}
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB manager", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := OTelProvider.Shutdown(ctx); err != nil {
		Logger.Warn("Failed to shut down OTel provider", "error", err)
	}
	Logger.Info("Shut down")
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
