package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/beforest-co/supportbot/internal/api"
	"github.com/beforest-co/supportbot/internal/bot"
	"github.com/beforest-co/supportbot/internal/convlog"
	"github.com/beforest-co/supportbot/internal/flow"
	"github.com/beforest-co/supportbot/internal/genai"
	"github.com/beforest-co/supportbot/internal/lockfile"
	"github.com/beforest-co/supportbot/internal/messaging"
	"github.com/beforest-co/supportbot/internal/ratelimit"
	"github.com/beforest-co/supportbot/internal/scheduler"
	"github.com/beforest-co/supportbot/internal/session"
	"github.com/beforest-co/supportbot/internal/store"
	"github.com/beforest-co/supportbot/internal/templates"
	"github.com/beforest-co/supportbot/internal/twiliowhatsapp"
	"github.com/beforest-co/supportbot/internal/util"
	"github.com/beforest-co/supportbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for supportbot state data
	DefaultStateDir = "/var/lib/supportbot"
	// DefaultDBFileName is the default SQLite database filename for the WhatsApp session
	DefaultDBFileName = "whatsmeow.db"
	// TransportWhatsApp runs on a whatsmeow personal client.
	TransportWhatsApp = "whatsapp"
	// TransportTwilio runs on the Twilio WhatsApp Business API.
	TransportTwilio = "twilio"
	// rateLimitSweepCron trims idle rate-limit buckets every five minutes.
	rateLimitSweepCron = "*/5 * * * *"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Single-instance guard on the state directory
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping supportbot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("supportbot failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("supportbot exited successfully")
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: Redis primary with in-memory failover, or in-memory only.
	sessionStore, err := buildSessionStore(ctx, flags)
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	sessions := session.NewManager(sessionStore)
	sessions.StartSweep(ctx)

	// Message templates: DB-backed when an analytics DSN is configured,
	// built-in fallback copy otherwise.
	templateService, err := buildTemplateService(ctx, flags)
	if err != nil {
		return err
	}
	defer templateService.Close()

	// Conversation log, best-effort analytics.
	logger := buildConversationLogger(flags)
	defer logger.Close()

	// AI fallback client, optional.
	ai, err := buildAIClient(flags)
	if err != nil {
		return err
	}

	engine := flow.NewEngine(sessions, templateService, ai)

	// Transport selection.
	service, webhook, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		return err
	}
	defer service.Stop()

	limits := ratelimit.NewManager()

	// Periodic maintenance.
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(rateLimitSweepCron, limits.Sweep); err != nil {
		slog.Warn("Failed to schedule rate limit sweep", "error", err)
	}

	dispatcher := bot.NewDispatcher(service, sessions, engine, limits, logger)
	dispatcher.Start(ctx)

	server := api.NewServer(webhook, buildAPIOptions(flags)...)
	serverErr := server.Start()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			stop()
			return err
		}
	}

	stop()
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Warn("API server shutdown error", "error", err)
	}
	service.Stop()
	dispatcher.Wait()
	return nil
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	WhatsAppDSN   string
	RedisURL      string
	AnalyticsDSN  string
	OpenAIKey     string
	AzureEndpoint string
	AzureVersion  string
	Model         string
	APIAddr       string
	Transport     string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	whatsappDSN   *string
	redisURL      *string
	analyticsDSN  *string
	openaiKey     *string
	azureEndpoint *string
	azureVersion  *string
	model         *string
	apiAddr       *string
	transport     *string
}

// initializeLogger sets up structured logging at the level named by
// SUPPORTBOT_LOG_LEVEL (debug, info, warn, error; default info).
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("SUPPORTBOT_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:      os.Getenv("SUPPORTBOT_STATE_DIR"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		RedisURL:      os.Getenv("REDIS_URL"),
		AnalyticsDSN:  os.Getenv("DATABASE_URL"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		AzureEndpoint: os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureVersion:  os.Getenv("AZURE_OPENAI_API_VERSION"),
		Model:         os.Getenv("OPENAI_MODEL"),
		APIAddr:       os.Getenv("API_ADDR"),
		Transport:     os.Getenv("SUPPORTBOT_TRANSPORT"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SUPPORTBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no WhatsApp DSN is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No WhatsApp DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	if config.Transport == "" {
		config.Transport = TransportWhatsApp
	}

	slog.Debug("environment variables loaded",
		"SUPPORTBOT_STATE_DIR", config.StateDir,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"REDIS_URL_SET", config.RedisURL != "",
		"DATABASE_URL_SET", config.AnalyticsDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"AZURE_OPENAI_ENDPOINT_SET", config.AzureEndpoint != "",
		"API_ADDR", config.APIAddr,
		"SUPPORTBOT_TRANSPORT", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", util.ParseBoolEnv("SUPPORTBOT_NUMERIC_CODE", false), "use numeric login code instead of QR code (overrides $SUPPORTBOT_NUMERIC_CODE)"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for supportbot data (overrides $SUPPORTBOT_STATE_DIR)"),
		whatsappDSN:   flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		redisURL:      flag.String("redis-url", config.RedisURL, "Redis URL for the session store (overrides $REDIS_URL)"),
		analyticsDSN:  flag.String("database-url", config.AnalyticsDSN, "database DSN for conversation log and templates (overrides $DATABASE_URL)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		azureEndpoint: flag.String("azure-endpoint", config.AzureEndpoint, "Azure OpenAI endpoint (overrides $AZURE_OPENAI_ENDPOINT)"),
		azureVersion:  flag.String("azure-api-version", config.AzureVersion, "Azure OpenAI API version (overrides $AZURE_OPENAI_API_VERSION)"),
		model:         flag.String("model", config.Model, "OpenAI model or Azure deployment name (overrides $OPENAI_MODEL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "HTTP server address (overrides $API_ADDR)"),
		transport:     flag.String("transport", config.Transport, "messaging transport: whatsapp or twilio (overrides $SUPPORTBOT_TRANSPORT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"whatsappDSN_set", *flags.whatsappDSN != "",
		"redisURL_set", *flags.redisURL != "",
		"analyticsDSN_set", *flags.analyticsDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"transport", *flags.transport)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return err
	}
	// Ensure a directory exists for a file-based WhatsApp DSN
	if store.DetectDSNType(*flags.whatsappDSN) != "postgres" {
		dbDir := filepath.Dir(*flags.whatsappDSN)
		slog.Debug("Creating directory for file-based WhatsApp database", "dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildSessionStore selects Redis-with-failover when a Redis URL is
// configured, in-memory otherwise.
func buildSessionStore(ctx context.Context, flags Flags) (store.SessionStore, error) {
	if *flags.redisURL == "" {
		slog.Warn("No Redis URL configured, sessions are in-memory only and lost on restart")
		return store.NewInMemorySessionStore(), nil
	}

	redisStore, err := store.NewRedisSessionStore(ctx, store.WithRedisURL(*flags.redisURL))
	if err != nil {
		return nil, err
	}
	return store.NewFailoverSessionStore(redisStore), nil
}

// buildTemplateService creates the template service, DB-backed when the
// analytics DSN is set.
func buildTemplateService(ctx context.Context, flags Flags) (*templates.Service, error) {
	if *flags.analyticsDSN == "" {
		slog.Info("No template database configured, serving built-in fallback copy")
		return templates.NewService(nil), nil
	}

	source, err := templates.NewSQLSource(*flags.analyticsDSN)
	if err != nil {
		return nil, err
	}
	svc := templates.NewService(source)
	svc.Initialize(ctx)
	return svc, nil
}

// buildConversationLogger creates the conversation log, no-op when the
// analytics DSN is absent or unreachable. Analytics must never block startup.
func buildConversationLogger(flags Flags) convlog.Logger {
	if *flags.analyticsDSN == "" {
		return convlog.NewNopLogger()
	}
	logger, err := convlog.NewSQLLogger(*flags.analyticsDSN)
	if err != nil {
		slog.Warn("Conversation log unavailable, continuing without analytics", "error", err)
		return convlog.NewNopLogger()
	}
	return logger
}

// buildAIClient creates the GenAI client, or nil when no API key is set.
func buildAIClient(flags Flags) (flow.AIClient, error) {
	if *flags.openaiKey == "" {
		slog.Warn("No OpenAI API key configured, AI fallback disabled")
		return nil, nil
	}

	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if *flags.azureEndpoint != "" {
		genaiOpts = append(genaiOpts, genai.WithAzureEndpoint(*flags.azureEndpoint, *flags.azureVersion))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}

	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// buildMessagingService creates the selected transport. The returned webhook
// handler is non-nil only for the Twilio transport.
func buildMessagingService(flags Flags) (messaging.Service, http.HandlerFunc, error) {
	switch *flags.transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		service := messaging.NewTwilioService(client)
		return service, service.WebhookHandler, nil

	case TransportWhatsApp:
		waOpts := buildWhatsAppOptions(flags)
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q (want %s or %s)", *flags.transport, TransportWhatsApp, TransportTwilio)
	}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	return waOpts
}

// buildAPIOptions constructs HTTP server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	return apiOpts
}
