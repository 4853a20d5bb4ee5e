package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the relay process.
// All values come from env (or a .env file loaded by main).
// No business logic should read raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Provider ProviderConfig
	Flow     FlowConfig
	Forward  ForwardConfig
	Twilio   TwilioConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogLevel overrides the env default: debug, info, warn or error.
	LogLevel string
}

// DBConfig is optional outside production. Without DB_HOST runs are kept in memory
// and cannot be resumed after a restart.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without REDIS_HOST the per-phone in-flight gate is off.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration

	// Service is the claim value issued and required on bearer tokens.
	Service string
}

type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	DispatchPath string
	LogsPath     string
	Timeout      time.Duration
	RPS          float64
	Burst        int

	Summarize *bool
	Record    *bool
	Voice     string
	From      string
}

type FlowConfig struct {
	DispatchMaxAttempts int
	PollInterval        time.Duration
	PollMaxAttempts     int
	MinAnswered         time.Duration

	PhoneCountryCode    string
	PhoneNationalDigits int

	RequireCalendarID bool
	ScriptFile        string

	// InFlightTTL bounds the per-phone gate slot. Zero derives it from the poll budget.
	InFlightTTL time.Duration
}

type ForwardConfig struct {
	URL     string
	Timeout time.Duration
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = intOr(parseErrs, firstSet("APP_PORT", "PORT"), 3091)
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = intOr(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = intOr(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = intOr(parseErrs, "REDIS_DB", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.TokenTTL, parseErrs = durationOr(parseErrs, "JWT_TOKEN_TTL", time.Hour)
	c.Auth.Service = strings.TrimSpace(os.Getenv("JWT_SERVICE"))

	c.Provider.BaseURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	c.Provider.APIKey = strings.TrimSpace(os.Getenv(firstSet("PROVIDER_API_KEY", "BLAND_API_KEY")))
	c.Provider.DispatchPath = strings.TrimSpace(os.Getenv("PROVIDER_DISPATCH_PATH"))
	c.Provider.LogsPath = strings.TrimSpace(os.Getenv("PROVIDER_LOGS_PATH"))
	c.Provider.Timeout, parseErrs = durationOr(parseErrs, "PROVIDER_TIMEOUT", 30*time.Second)
	c.Provider.RPS, parseErrs = floatOr(parseErrs, "PROVIDER_RPS", 0)
	c.Provider.Burst, parseErrs = intOr(parseErrs, "PROVIDER_BURST", 1)
	c.Provider.Summarize, parseErrs = optionalBool(parseErrs, "PROVIDER_SUMMARIZE")
	c.Provider.Record, parseErrs = optionalBool(parseErrs, "PROVIDER_RECORD")
	c.Provider.Voice = strings.TrimSpace(os.Getenv("PROVIDER_VOICE"))
	c.Provider.From = strings.TrimSpace(os.Getenv("PROVIDER_FROM"))

	c.Flow.DispatchMaxAttempts, parseErrs = intOr(parseErrs, "DISPATCH_MAX_ATTEMPTS", 3)
	c.Flow.PollInterval, parseErrs = durationOr(parseErrs, "POLL_INTERVAL", 15*time.Second)
	c.Flow.PollMaxAttempts, parseErrs = intOr(parseErrs, "POLL_MAX_ATTEMPTS", 10)
	c.Flow.MinAnswered, parseErrs = durationOr(parseErrs, "CALL_MIN_ANSWERED", 800*time.Millisecond)
	c.Flow.PhoneCountryCode = strings.TrimSpace(os.Getenv("PHONE_COUNTRY_CODE"))
	c.Flow.PhoneNationalDigits, parseErrs = intOr(parseErrs, "PHONE_NATIONAL_DIGITS", 10)
	{
		b, errs := optionalBool(parseErrs, "REQUIRE_CALENDAR_ID")
		parseErrs = errs
		c.Flow.RequireCalendarID = b != nil && *b
	}
	c.Flow.ScriptFile = strings.TrimSpace(os.Getenv("CALL_SCRIPT_FILE"))
	c.Flow.InFlightTTL, parseErrs = durationOr(parseErrs, "CALL_CAP_TTL", 0)

	c.Forward.URL = strings.TrimSpace(os.Getenv("FORWARD_URL"))
	c.Forward.Timeout, parseErrs = durationOr(parseErrs, "FORWARD_TIMEOUT", 30*time.Second)

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))

	if err := errors.Join(parseErrs...); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults and reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DatabaseEnabled() {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required when DB_HOST is set"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required when DB_HOST is set"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("DB_HOST is required in production"))
	}

	if c.RedisEnabled() && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.Service == "" {
		c.Auth.Service = "blandAI"
	}

	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("PROVIDER_API_KEY (or BLAND_API_KEY) is required"))
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.bland.ai"
	}
	if !isHTTPURL(c.Provider.BaseURL) {
		errs = append(errs, fmt.Errorf("PROVIDER_BASE_URL must be an http(s) url, got %q", c.Provider.BaseURL))
	}
	if c.Provider.RPS < 0 {
		errs = append(errs, errors.New("PROVIDER_RPS must be >= 0"))
	}

	if c.Flow.DispatchMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_ATTEMPTS must be > 0, got %d", c.Flow.DispatchMaxAttempts))
	}
	if c.Flow.PollMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("POLL_MAX_ATTEMPTS must be > 0, got %d", c.Flow.PollMaxAttempts))
	}
	if c.Flow.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be > 0"))
	}
	if c.Flow.MinAnswered < 0 {
		errs = append(errs, errors.New("CALL_MIN_ANSWERED must be >= 0"))
	}
	if c.Flow.PhoneCountryCode == "" {
		c.Flow.PhoneCountryCode = "+1"
	}
	if c.Flow.PhoneNationalDigits <= 0 {
		errs = append(errs, fmt.Errorf("PHONE_NATIONAL_DIGITS must be > 0, got %d", c.Flow.PhoneNationalDigits))
	}

	if c.Forward.URL != "" && !isHTTPURL(c.Forward.URL) {
		errs = append(errs, fmt.Errorf("FORWARD_URL must be an http(s) url, got %q", c.Forward.URL))
	}
	if c.Forward.Timeout <= 0 {
		c.Forward.Timeout = 30 * time.Second
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) DatabaseEnabled() bool { return c.DB.Host != "" }

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) SMSEnabled() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.FromNumber != ""
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PollBudget is the worst-case time a run spends polling.
func (c Config) PollBudget() time.Duration {
	return c.Flow.PollInterval * time.Duration(c.Flow.PollMaxAttempts)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// firstSet returns the first key that has a non-empty value, else the first key.
func firstSet(keys ...string) string {
	for _, k := range keys {
		if strings.TrimSpace(os.Getenv(k)) != "" {
			return k
		}
	}
	return keys[0]
}

func intOr(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func floatOr(errs []error, key string, def float64) (float64, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a number, got %q", key, v))
	}
	return f, errs
}

func durationOr(errs []error, key string, def time.Duration) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(errs []error, key string) (*bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return &b, errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}
