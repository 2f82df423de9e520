package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storekit/admintrust/pkg/auth"
	"github.com/storekit/admintrust/pkg/config"
	"github.com/storekit/admintrust/pkg/keyring"
	"github.com/storekit/admintrust/pkg/posture"
	"github.com/storekit/admintrust/pkg/telemetry"
	"github.com/storekit/admintrust/pkg/threat"
)

var (
	configPath = flag.String("config", "admintrust.yaml", "Config file path")
	Version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("admintrust server starting")

	ctx := context.Background()
	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "admintrust-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
	}, logger)
	if err != nil {
		fatal("failed to set up tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	srv, err := buildServer(cfg, logger)
	if err != nil {
		fatal("failed to build server", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), withRequestContext(logger))
	srv.registerRoutes(r)

	logger.Info().Str("listen", cfg.Server.Listen).Msg("listening")
	if err := r.Run(cfg.Server.Listen); err != nil {
		fatal("server exited", err)
	}
}

// buildServer wires the engine: key ring, posture evaluator, threat monitor
// with its sinks, and the auth orchestrator on top.
func buildServer(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	ring := keyring.NewRing(
		keyring.Backend(cfg.Keys.Backend),
		cfg.Keys.EnvSecret,
		logger,
		keyring.WithRotationInterval(time.Duration(cfg.Keys.RotationDays)*24*time.Hour),
	)

	var policies []posture.Policy
	if cfg.Posture.PolicyFile != "" {
		var err error
		if policies, err = posture.LoadPolicies(cfg.Posture.PolicyFile); err != nil {
			return nil, err
		}
		logger.Info().Int("policies", len(policies)).Msg("loaded compliance policies")
	}
	evaluator := posture.NewEvaluator(policies)

	var rules []threat.Rule
	if cfg.Threat.RuleFile != "" {
		var err error
		if rules, err = threat.LoadRules(cfg.Threat.RuleFile); err != nil {
			return nil, err
		}
		logger.Info().Int("rules", len(rules)).Msg("loaded detection rules")
	}
	monitor := threat.NewMonitor(rules, logger)

	if cfg.Threat.WebhookURL != "" {
		monitor.AddSink(threat.NewWebhookSink(cfg.Threat.WebhookURL, cfg.Threat.WebhookSecret))
	}

	var archive *threat.ArchiveSink
	var db *gorm.DB
	if cfg.Threat.ArchiveEvents {
		var err error
		db, err = gorm.Open(sqlite.Open(cfg.Server.DBPath), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		if archive, err = threat.NewArchiveSink(db); err != nil {
			return nil, err
		}
		monitor.AddSink(archive)
	}

	authenticator, err := auth.New(auth.Config{
		Username:       cfg.Admin.Username,
		Password:       cfg.Admin.Password,
		Email:          cfg.Admin.NotificationEmail,
		TenantID:       cfg.Admin.TenantID,
		Audience:       cfg.Keys.Audience,
		Issuer:         cfg.Keys.Issuer,
		TokenTTL:       time.Duration(cfg.Keys.TokenTTLHours) * time.Hour,
		FallbackSecret: cfg.Keys.FallbackSecret,
	}, ring, evaluator, monitor, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:           cfg,
		logger:        logger,
		ring:          ring,
		evaluator:     evaluator,
		monitor:       monitor,
		authenticator: authenticator,
		archive:       archive,
		db:            db,
		limiter:       NewRateLimiter(),
	}, nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Str("service", "admintrust").Logger()
}

func fatal(msg string, err error) {
	errLogger := zerolog.New(os.Stderr)
	errLogger.Error().Err(err).Msg(msg)
	os.Exit(1)
}
