package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hutchutchutch/voiceform/internal/api"
	"github.com/hutchutchutch/voiceform/internal/flow"
	"github.com/hutchutchutch/voiceform/internal/judge"
	"github.com/hutchutchutch/voiceform/internal/store"
	"github.com/hutchutchutch/voiceform/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for voiceform state data
	DefaultStateDir = "/var/lib/voiceform"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "voiceform.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	j := buildJudge(flags)
	engine := flow.NewEngine(st, j, flow.WithIdleTimeout(*flags.idleTimeout))

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, engine, apiOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping voiceform with configured modules")
	if err := server.Run(ctx); err != nil {
		slog.Error("voiceform failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("voiceform exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	IdleTimeout time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	idleTimeout *time.Duration
}

// initializeLogger sets up structured logging; VOICEFORM_DEBUG enables debug level
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("VOICEFORM_DEBUG", false) {
		level = slog.LevelDebug
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
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("VOICEFORM_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		IdleTimeout: util.ParseDurationEnv("VOICEFORM_IDLE_TIMEOUT", flow.DefaultIdleTimeout),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No VOICEFORM_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"VOICEFORM_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"VOICEFORM_IDLE_TIMEOUT", config.IdleTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for voiceform data (overrides $VOICEFORM_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN: a PostgreSQL connection string or an SQLite file path (overrides $DATABASE_URL); empty selects the in-memory store"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for the answer judge (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		idleTimeout: flag.Duration("idle-timeout", config.IdleTimeout, "idle session expiry (overrides $VOICEFORM_IDLE_TIMEOUT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"idleTimeout", *flags.idleTimeout)

	return flags
}

// buildStore selects a storage backend from the DSN: PostgreSQL for
// connection strings, SQLite for file paths, in-memory when unset.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Info("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}

	if store.DetectDSNType(dsn) == "postgres" {
		slog.Info("Configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}

	if !filepath.IsAbs(dsn) {
		dsn = filepath.Join(*flags.stateDir, dsn)
	}
	slog.Info("Configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildJudge selects the answer judge: OpenAI-backed when a key is
// configured, deterministic rules only otherwise.
func buildJudge(flags Flags) judge.Judge {
	if *flags.openaiKey != "" {
		j, err := judge.NewOpenAIJudge(judge.WithAPIKey(*flags.openaiKey))
		if err == nil {
			slog.Info("Using OpenAI answer judge")
			return j
		}
		slog.Warn("Failed to initialize OpenAI judge, falling back to rules", "error", err)
	} else {
		slog.Info("No OpenAI API key configured, using rule-based answer judge")
	}
	return judge.NewRuleJudge()
}
