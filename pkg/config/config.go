package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the trust engine's full configuration surface.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Admin   AdminConfig   `yaml:"admin"`
	Keys    KeysConfig    `yaml:"keys"`
	Posture PostureConfig `yaml:"posture"`
	Threat  ThreatConfig  `yaml:"threat"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

type ServerConfig struct {
	Listen            string `yaml:"listen"`
	DBPath            string `yaml:"db_path"`
	LoginRateLimit    int    `yaml:"login_rate_limit"`
	LoginRateWindowS  int    `yaml:"login_rate_window_s"`
	SessionCookieName string `yaml:"session_cookie_name"`
}

type AdminConfig struct {
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	NotificationEmail string `yaml:"notification_email"`
	TenantID          string `yaml:"tenant_id"`
}

type KeysConfig struct {
	Backend        string `yaml:"backend"` // env|vault|kms|edge-kv
	EnvSecret      string `yaml:"env_secret"`
	FallbackSecret string `yaml:"fallback_secret"`
	RotationDays   int    `yaml:"rotation_days"`
	TokenTTLHours  int    `yaml:"token_ttl_hours"`
	Audience       string `yaml:"audience"`
	Issuer         string `yaml:"issuer"`
}

type PostureConfig struct {
	PolicyFile string `yaml:"policy_file"`
}

type ThreatConfig struct {
	RuleFile      string `yaml:"rule_file"`
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	ArchiveEvents bool   `yaml:"archive_events"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            ":8443",
			DBPath:            "admintrust.db",
			LoginRateLimit:    10,
			LoginRateWindowS:  60,
			SessionCookieName: "admin_session",
		},
		Admin: AdminConfig{
			Username: "admin",
			TenantID: "default",
		},
		Keys: KeysConfig{
			Backend:       "env",
			RotationDays:  30,
			TokenTTLHours: 8,
			Audience:      "admin-panel",
			Issuer:        "admintrust",
		},
		Threat: ThreatConfig{
			ArchiveEvents: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Load reads config from file with env var overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if v := os.Getenv("ADMINTRUST_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("ADMINTRUST_ADMIN_USERNAME"); v != "" {
		cfg.Admin.Username = v
	}
	if v := os.Getenv("ADMINTRUST_ADMIN_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
	if v := os.Getenv("ADMINTRUST_NOTIFICATION_EMAIL"); v != "" {
		cfg.Admin.NotificationEmail = v
	}
	if v := os.Getenv("ADMINTRUST_KEY_BACKEND"); v != "" {
		cfg.Keys.Backend = v
	}
	if v := os.Getenv("ADMINTRUST_SIGNING_SECRET"); v != "" {
		cfg.Keys.EnvSecret = v
	}
	if v := os.Getenv("ADMINTRUST_FALLBACK_SECRET"); v != "" {
		cfg.Keys.FallbackSecret = v
	}
	if v := os.Getenv("ADMINTRUST_WEBHOOK_URL"); v != "" {
		cfg.Threat.WebhookURL = v
	}
	if v := os.Getenv("ADMINTRUST_WEBHOOK_SECRET"); v != "" {
		cfg.Threat.WebhookSecret = v
	}
	if v := os.Getenv("ADMINTRUST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate checks required fields and repairs out-of-range values.
func (c *Config) Validate() error {
	if c.Admin.Username == "" {
		return ErrMissingAdminUsername
	}
	if c.Admin.Password == "" {
		return ErrMissingAdminPassword
	}
	switch c.Keys.Backend {
	case "env":
		if c.Keys.EnvSecret == "" {
			return ErrMissingSigningSecret
		}
	case "vault", "kms", "edge-kv":
		// Named external backends; the key ring fails hard at fetch time
		// until they are implemented.
	default:
		return &Error{"unknown key backend: " + c.Keys.Backend}
	}
	if c.Keys.RotationDays <= 0 {
		c.Keys.RotationDays = 30
	}
	if c.Keys.TokenTTLHours <= 0 {
		c.Keys.TokenTTLHours = 8
	}
	if c.Server.LoginRateLimit < 0 {
		c.Server.LoginRateLimit = 0
	}
	if c.Server.LoginRateWindowS <= 0 {
		c.Server.LoginRateWindowS = 60
	}
	if c.Server.SessionCookieName == "" {
		c.Server.SessionCookieName = "admin_session"
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

var (
	ErrMissingAdminUsername = &Error{"admin username is required"}
	ErrMissingAdminPassword = &Error{"admin password is required"}
	ErrMissingSigningSecret = &Error{"signing secret is required for the env key backend"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
