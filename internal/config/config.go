package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transport backends accepted by TRANSPORT_BACKEND.
const (
	BackendSMTP = "smtp"
	BackendMock = "mock"
)

// Config captures all runtime configuration for the mailer.
type Config struct {
	App      AppConfig
	SMTP     SMTPConfig
	Dispatch DispatchConfig
	Kafka    KafkaConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// SMTPConfig stores the submission server and the sender credentials.
type SMTPConfig struct {
	Backend        string
	Host           string
	Port           int
	User           string
	Pass           string
	FromName       string
	AllowedDomain  string
	ImplicitTLS    bool
	TimeoutSeconds int
	HelloName      string
}

// Timeout returns the per-command timeout as a duration.
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchConfig controls pacing and the observable log window of a run.
type DispatchConfig struct {
	PacingMillis int
	LogWindow    int
}

// Pacing returns the delay between sends as a duration.
func (c DispatchConfig) Pacing() time.Duration {
	return time.Duration(c.PacingMillis) * time.Millisecond
}

// KafkaConfig enables the optional outcome event sink when Brokers is set.
type KafkaConfig struct {
	Brokers      []string
	OutcomeTopic string
}

// Enabled reports whether outcome events should be published.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Load reads environment variables (and a .env file when present), applies
// defaults, validates required values and returns a populated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.SMTP.Backend = strings.ToLower(ldr.getString("TRANSPORT_BACKEND", BackendSMTP, false))
	switch cfg.SMTP.Backend {
	case BackendSMTP:
		cfg.SMTP.Host = ldr.getString("SMTP_HOST", "", true)
	case BackendMock:
		cfg.SMTP.Host = ldr.getString("SMTP_HOST", "localhost", false)
	default:
		ldr.addError(fmt.Sprintf("TRANSPORT_BACKEND must be %q or %q", BackendSMTP, BackendMock))
	}
	cfg.SMTP.Port = ldr.getInt("SMTP_PORT", 465, false)
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		ldr.addError("SMTP_PORT must be between 1 and 65535")
	}
	cfg.SMTP.User = ldr.getString("SMTP_USER", "", true)
	cfg.SMTP.Pass = ldr.getString("SMTP_PASS", "", true)
	cfg.SMTP.FromName = ldr.getString("SMTP_FROM_NAME", "", false)
	cfg.SMTP.AllowedDomain = ldr.getString("SMTP_ALLOWED_DOMAIN", "", false)
	cfg.SMTP.ImplicitTLS = ldr.getBool("SMTP_IMPLICIT_TLS", cfg.SMTP.Port == 465, false)
	cfg.SMTP.TimeoutSeconds = ldr.getInt("SMTP_TIMEOUT_SECONDS", 30, false)
	cfg.SMTP.HelloName = ldr.getString("SMTP_HELLO_NAME", "localhost", false)

	cfg.Dispatch.PacingMillis = ldr.getInt("DISPATCH_PACING_MS", 500, false)
	if cfg.Dispatch.PacingMillis < 0 {
		ldr.addError("DISPATCH_PACING_MS cannot be negative")
	}
	cfg.Dispatch.LogWindow = ldr.getInt("DISPATCH_LOG_WINDOW", 10, false)
	if cfg.Dispatch.LogWindow < 1 {
		ldr.addError("DISPATCH_LOG_WINDOW must be >= 1")
	}

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.OutcomeTopic = ldr.getString("KAFKA_OUTCOME_TOPIC", "", cfg.Kafka.Enabled())

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string, required bool) (string, bool) {
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		if required {
			l.addError(fmt.Sprintf("%s is required", key))
		}
		return "", false
	}
	return val, true
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key, required); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
