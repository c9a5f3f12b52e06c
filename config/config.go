// Package config loads the service settings from the environment and an
// optional .env file. Settings satisfies auth.Config so the core never
// reads the environment itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	auth "github.com/goliatone/go-courier-auth"
)

// Settings is the full process configuration
type Settings struct {
	AppName     string   `env:"APP_NAME" envDefault:"courigistics"`
	Profiles    []string `env:"APP_PROFILES" envSeparator:","`
	HTTPAddr    string   `env:"HTTP_ADDR" envDefault:":8080"`
	FrontendURL string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`

	SigningKey      string        `env:"JWT_SIGNING_KEY,required"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	// TokenLookup lists where bearer tokens are read from, first match wins
	TokenLookup string        `env:"AUTH_TOKEN_LOOKUP" envDefault:"header:Authorization"`
	GateTimeout time.Duration `env:"AUTH_GATE_TIMEOUT" envDefault:"2s"`

	VerificationTokenBytes int           `env:"VERIFICATION_TOKEN_BYTES" envDefault:"32"`
	EmailVerificationTTL   time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	AccountSetupTTL        time.Duration `env:"ACCOUNT_SETUP_TTL" envDefault:"72h"`
	PasswordResetTTL       time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`

	EmployeeIDPrefix   string `env:"EMPLOYEE_ID_PREFIX" envDefault:"COU"`
	EmployeeIDWidth    int    `env:"EMPLOYEE_ID_WIDTH" envDefault:"4"`
	CourierAutoApprove bool   `env:"COURIER_AUTO_APPROVE" envDefault:"false"`
	DefaultDepotCode   string `env:"COURIER_DEFAULT_DEPOT" envDefault:"NBO-HQ"`
	PhoneDefaultRegion string `env:"PHONE_DEFAULT_REGION" envDefault:"KE"`

	Database Database
	Limits   Limits
	Kafka    Kafka
	Notify   Notify
	Seed     Seed
}

// Database selects the store. An empty DSN with the sqlite driver opens
// an in-memory database.
type Database struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DB_DSN"`
}

// Limits configures the request limiter. Without a redis address the
// limiter is kept in process memory.
type Limits struct {
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	PerMinute     int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
}

// Kafka is optional. With no brokers emails are logged and activity is
// kept in process.
type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	EmailTopic    string   `env:"KAFKA_EMAIL_TOPIC" envDefault:"courier.auth.emails"`
	ActivityTopic string   `env:"KAFKA_ACTIVITY_TOPIC" envDefault:"courier.auth.activity"`
}

// Enabled reports whether a broker list was configured
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

type Notify struct {
	Workers            int           `env:"NOTIFY_WORKERS" envDefault:"2"`
	QueueSize          int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"256"`
	BreakerMaxFailures uint32        `env:"NOTIFY_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerTimeout     time.Duration `env:"NOTIFY_BREAKER_TIMEOUT" envDefault:"30s"`
}

// Seed holds the bootstrap admin. Seeding is skipped when AdminEmail is empty.
type Seed struct {
	AdminEmail    string `env:"SEED_ADMIN_EMAIL"`
	AdminUsername string `env:"SEED_ADMIN_USERNAME" envDefault:"admin"`
	AdminPhone    string `env:"SEED_ADMIN_PHONE"`
	AdminPassword string `env:"SEED_ADMIN_PASSWORD"`
	DepotName     string `env:"SEED_DEPOT_NAME" envDefault:"Nairobi HQ"`
	DepotCity     string `env:"SEED_DEPOT_CITY" envDefault:"Nairobi"`
}

// Load reads an optional .env file and then the process environment
func Load() (*Settings, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only
func Parse() (*Settings, error) {
	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express
func (s *Settings) Validate() error {
	if _, err := auth.NewBase64KeyProvider(s.SigningKey).SigningKey(); err != nil {
		return fmt.Errorf("JWT_SIGNING_KEY: %w", err)
	}
	if s.AccessTokenTTL <= 0 || s.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttls must be positive")
	}
	if strings.TrimSpace(s.TokenLookup) == "" {
		return fmt.Errorf("AUTH_TOKEN_LOOKUP must not be empty")
	}
	if s.VerificationTokenBytes < 16 {
		return fmt.Errorf("VERIFICATION_TOKEN_BYTES must be at least 16, got %d", s.VerificationTokenBytes)
	}
	if s.EmployeeIDWidth < 1 {
		return fmt.Errorf("EMPLOYEE_ID_WIDTH must be positive, got %d", s.EmployeeIDWidth)
	}
	if s.Limits.PerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", s.Limits.PerMinute)
	}
	return nil
}

func (s *Settings) GetApplicationName() string { return s.AppName }

func (s *Settings) GetEnvironment() string {
	return auth.ResolveEnvironment(s.Profiles)
}

// IsProduction is true when the prod profile is active
func (s *Settings) IsProduction() bool {
	return s.GetEnvironment() == auth.EnvironmentProd
}

func (s *Settings) GetSigningKey() string { return s.SigningKey }

func (s *Settings) GetAccessTokenTTL() time.Duration { return s.AccessTokenTTL }

func (s *Settings) GetRefreshTokenTTL() time.Duration { return s.RefreshTokenTTL }

func (s *Settings) GetVerificationTokenBytes() int { return s.VerificationTokenBytes }

func (s *Settings) GetVerificationTokenTTL(kind auth.VerificationTokenType) time.Duration {
	switch kind {
	case auth.TokenAccountSetup:
		return s.AccountSetupTTL
	case auth.TokenPasswordReset:
		return s.PasswordResetTTL
	default:
		return s.EmailVerificationTTL
	}
}

func (s *Settings) GetEmployeeIDPrefix() string { return s.EmployeeIDPrefix }

func (s *Settings) GetEmployeeIDWidth() int { return s.EmployeeIDWidth }

func (s *Settings) GetCourierAutoApprove() bool { return s.CourierAutoApprove }

func (s *Settings) GetDefaultDepotCode() string { return s.DefaultDepotCode }

func (s *Settings) GetPhoneDefaultRegion() string {
	return strings.ToUpper(s.PhoneDefaultRegion)
}

func (s *Settings) GetFrontendURL() string {
	return strings.TrimRight(s.FrontendURL, "/")
}

var _ auth.Config = (*Settings)(nil)
