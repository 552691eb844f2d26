package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/weekpilot/weekpilot/internal/api"
	"github.com/weekpilot/weekpilot/internal/flow"
	"github.com/weekpilot/weekpilot/internal/genai"
	"github.com/weekpilot/weekpilot/internal/lockfile"
	"github.com/weekpilot/weekpilot/internal/messaging"
	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/recovery"
	"github.com/weekpilot/weekpilot/internal/scheduler"
	slacktransport "github.com/weekpilot/weekpilot/internal/slack"
	"github.com/weekpilot/weekpilot/internal/store"
	"github.com/weekpilot/weekpilot/internal/util"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for WeekPilot state data.
	DefaultStateDir = "/var/lib/weekpilot"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "weekpilot.db"

	defaultJobPollInterval = 10 * time.Second
	dedupRetention         = 7 * 24 * time.Hour
)

// appStore is the full persistence surface the application wires together.
type appStore interface {
	store.Store
	store.DedupRepo
	store.JobRepo
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL        string
	StateDir           string
	OpenAIKey          string
	APIAddr            string
	SlackBotToken      string
	SlackSigningSecret string
	KickoffCron        string
	DisableCron        bool
	JobPollInterval    time.Duration
}

// Flags holds command line flag values.
type Flags struct {
	stateDir    *string
	dbDSN       *string
	openaiKey   *string
	apiAddr     *string
	kickoffCron *string
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(config, flags); err != nil {
		slog.Error("WeekPilot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("WeekPilot exited successfully")
}

func run(config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	profiles := flow.NewProfileFormatter(st)
	planner := flow.NewPlannerFlow(st, flow.NewResponder(client), profiles)
	assistant := flow.NewAssistantFlow(client, st, profiles)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		slackService *slacktransport.Service
		slackWebhook *slacktransport.WebhookHandler
		respHandler  *messaging.ResponseHandler
		hookFactory  recovery.HookFactory
	)
	if config.SlackBotToken != "" && config.SlackSigningSecret != "" {
		slackService = slacktransport.NewService(config.SlackBotToken)
		slackWebhook = slacktransport.NewWebhookHandler(config.SlackSigningSecret, slackService, st)
		respHandler = messaging.NewResponseHandler(slackService)
		hookFactory = planningHookFactory(planner, slackService)
		if err := slackService.Start(ctx); err != nil {
			return err
		}
		respHandler.Start(ctx)
	} else {
		slog.Info("Slack transport not configured, conversations run over HTTP only")
	}

	jobRunner := store.NewJobRunner(st, config.JobPollInterval)
	registerJobHandlers(jobRunner, st, planner, slackService, respHandler, hookFactory)

	recoverer := recovery.NewRecoverer(st, jobRunner, respHandler, hookFactory)
	if err := recoverer.Run(ctx); err != nil {
		return err
	}
	go jobRunner.Run(ctx)

	if !config.DisableCron {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.ScheduleWeeklyKickoff(*flags.kickoffCron, st, st); err != nil {
			return err
		}
		if err := sched.ScheduleDedupPurge(scheduler.DefaultDedupPurgeCron, st); err != nil {
			return err
		}
	}

	var webhookHandler http.Handler
	if slackWebhook != nil {
		webhookHandler = slackWebhook
	}
	server := api.NewServer(st, planner, assistant, webhookHandler, api.WithAddr(*flags.apiAddr))
	return server.Run(ctx)
}

// planningHookFactory routes a user's inbound Slack messages into their open
// planning session and sends the assistant's reply back over Slack.
func planningHookFactory(planner *flow.PlannerFlow, svc messaging.Service) recovery.HookFactory {
	return func(userID, sessionID string) messaging.ResponseAction {
		return func(ctx context.Context, from, text string, _ int64) (bool, error) {
			result, err := planner.ProcessUserMessage(ctx, sessionID, text)
			if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrSessionTerminal) {
				// Stale hook; let the default reply guide the user.
				return false, nil
			}
			if result == nil {
				return false, err
			}
			if sendErr := svc.SendMessage(ctx, from, result.AssistantMessage); sendErr != nil {
				return true, sendErr
			}
			return true, nil
		}
	}
}

// registerJobHandlers wires the durable job kinds.
func registerJobHandlers(runner *store.JobRunner, st appStore, planner *flow.PlannerFlow, slackService *slacktransport.Service, respHandler *messaging.ResponseHandler, hookFactory recovery.HookFactory) {
	runner.RegisterHandler(store.JobKindDedupPurge, func(ctx context.Context, payload string) error {
		n, err := st.PurgeDedupBefore(time.Now().Add(-dedupRetention))
		if err != nil {
			return err
		}
		slog.Info("dedup purge completed", "removed", n)
		return nil
	})

	runner.RegisterHandler(store.JobKindWeeklyKickoff, func(ctx context.Context, payload string) error {
		var kickoff scheduler.KickoffPayload
		if err := json.Unmarshal([]byte(payload), &kickoff); err != nil {
			return err
		}
		session, opening, err := planner.StartSession(ctx, kickoff.UserID)
		if err != nil {
			return err
		}
		if slackService == nil {
			slog.Info("kickoff session created without Slack delivery", "userID", kickoff.UserID, "sessionID", session.ID)
			return nil
		}
		if respHandler != nil && hookFactory != nil {
			if err := respHandler.RegisterHook(kickoff.UserID, hookFactory(kickoff.UserID, session.ID)); err != nil {
				slog.Warn("kickoff hook registration failed", "error", err, "userID", kickoff.UserID)
			}
		}
		return slackService.SendMessage(ctx, kickoff.UserID, opening)
	})
}

func buildStore(dsn string) (appStore, error) {
	if dsn == "" {
		slog.Info("no database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == store.DSNTypePostgres {
		slog.Debug("detected PostgreSQL DSN", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("detected SQLite DSN", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// initializeLogger sets up structured logging.
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file when present.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StateDir:           util.EnvOrDefault("WEEKPILOT_STATE_DIR", DefaultStateDir),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		APIAddr:            util.EnvOrDefault("API_ADDR", api.DefaultAddr),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		KickoffCron:        util.EnvOrDefault("KICKOFF_SCHEDULE", scheduler.DefaultKickoffCron),
		DisableCron:        util.ParseBoolEnv("WEEKPILOT_DISABLE_CRON", false),
		JobPollInterval:    util.ParseDurationEnv("WEEKPILOT_JOB_POLL_INTERVAL", defaultJobPollInterval),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("no DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WEEKPILOT_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SLACK_CONFIGURED", config.SlackBotToken != "" && config.SlackSigningSecret != "",
		"KICKOFF_SCHEDULE", config.KickoffCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for WeekPilot data (overrides $WEEKPILOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		kickoffCron: flag.String("kickoff-cron", config.KickoffCron, "cron schedule for weekly kickoff (overrides $KICKOFF_SCHEDULE)"),
	}
	flag.Parse()

	// Follow the state directory when the DSN was only ever defaulted.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}
