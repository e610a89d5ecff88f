package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/audiocast/internal/api"
	"github.com/snarg/audiocast/internal/config"
	"github.com/snarg/audiocast/internal/costs"
	"github.com/snarg/audiocast/internal/database"
	"github.com/snarg/audiocast/internal/dialogue"
	"github.com/snarg/audiocast/internal/events"
	"github.com/snarg/audiocast/internal/metrics"
	"github.com/snarg/audiocast/internal/mqttclient"
	"github.com/snarg/audiocast/internal/pipeline"
	"github.com/snarg/audiocast/internal/storage"
	"github.com/snarg/audiocast/internal/summarize"
	"github.com/snarg/audiocast/internal/transcribe"
	"github.com/snarg/audiocast/internal/voice"
	"github.com/snarg/audiocast/internal/watcher"
)

var version = "dev"

// runtimeStats feeds the scrape-time gauges.
type runtimeStats struct {
	runs *pipeline.Controller
	bus  *events.Bus
}

func (s runtimeStats) ActiveRuns() map[string]int { return s.runs.ActiveRuns() }
func (s runtimeStats) SubscriberCount() int       { return s.bus.SubscriberCount() }

func main() {
	envFile := flag.String("env-file", "", "path to .env file (default: .env)")
	listen := flag.String("listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	logLevel := flag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	databaseURL := flag.String("database-url", "", "PostgreSQL URL (overrides DATABASE_URL)")
	storageDir := flag.String("storage-dir", "", "local asset directory (overrides STORAGE_DIR)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	startTime := time.Now()

	// Config
	cfg, err := config.Load(config.Overrides{
		EnvFile:     *envFile,
		HTTPAddr:    *listen,
		LogLevel:    *logLevel,
		DatabaseURL: *databaseURL,
		StorageDir:  *storageDir,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("audiocast starting")

	// Sentry
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     "audiocast@" + version,
		}); err != nil {
			log.Warn().Err(err).Msg("sentry init failed, continuing without error reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	dbLog := log.With().Str("component", "database").Logger()
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Storage
	storageLog := log.With().Str("component", "storage").Logger()
	assets, services, err := storage.New(cfg.S3, cfg.StorageDir, cfg.PublicBaseURL, storageLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	for _, svc := range services {
		svc.Start()
		defer svc.Stop()
	}

	// MQTT (optional). Interfaces stay nil when disabled.
	var (
		notifier   pipeline.Notifier
		mqttHealth api.ConnChecker
	)
	if cfg.MQTT.Enabled() {
		mq, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mq.Close()
		notifier = mq
		mqttHealth = mq
	}

	bus := events.NewBus(4096)

	// Providers
	recRoutes, err := recognitionRoutes(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid recognition routes")
	}
	sumRoutes, err := summaryRoutes(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid summary routes")
	}
	scriptClient, err := llmClient(cfg, cfg.ScriptProvider)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SCRIPT_PROVIDER")
	}
	synth, err := synthesizer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TTS provider")
	}
	voices, err := voicePolicies(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load voice policy")
	}

	pipelineLog := log.With().Str("component", "pipeline").Logger()
	recognizer := transcribe.NewRecognizer(transcribe.RecognizerOptions{
		Routes:       recRoutes,
		Credits:      db,
		PollInterval: cfg.PollInterval,
		MaxWait:      cfg.PollTimeout,
		Log:          pipelineLog,
	})

	launcher := pipeline.NewLauncher(ctx, pipelineLog)
	controller := pipeline.NewController(pipeline.Options{
		Recognizer: recognizer,
		Summarizer: summarize.New(sumRoutes, pipelineLog),
		Scripts:    dialogue.NewGenerator(scriptClient, pipelineLog),
		Voices:     voice.NewOrchestrator(synth, pipelineLog),
		Ledger:     db,
		Credits:    db,
		Records:    db,
		Assets:     assets,
		Publisher:  bus,
		Notifier:   notifier,
		Pricing:    costs.New(cfg.Pricing),
		Launcher:   launcher,
		Log:        log,
	})
	controller.StartJanitor(time.Minute, time.Hour)

	log.Info().
		Strs("recognition_locales", recognizer.Locales()).
		Str("script_provider", cfg.ScriptProvider).
		Str("tts_provider", synth.Name()).
		Str("storage", assets.Type()).
		Msg("pipeline ready")

	// Hot folder (optional)
	var inbox *watcher.Watcher
	if cfg.InboxDir != "" {
		inbox = watcher.New(watcher.Options{
			Dir:       cfg.InboxDir,
			UserID:    cfg.InboxUserID,
			Locale:    cfg.InboxLocale,
			Workers:   cfg.InboxWorkers,
			QueueSize: cfg.InboxQueueSize,
			Assets:    assets,
			Runs:      controller,
			Log:       log,
		})
		if err := inbox.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start inbox watcher")
		}
	}

	prometheus.MustRegister(metrics.NewCollector(db.Pool, runtimeStats{runs: controller, bus: bus}))

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Runs:      controller,
		Events:    bus,
		Records:   db,
		Accounts:  db,
		Assets:    assets,
		Voices:    voices,
		Health:    api.NewHealthHandler(db, mqttHealth, controller.ActiveRuns, assets.Type(), version, startTime),
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if inbox != nil {
		inbox.Stop()
	}
	if err := launcher.Wait(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("runs still in flight at shutdown")
	}

	log.Info().Msg("audiocast stopped")
}
