package config

import (
	"errors" // Sentinel comparison
	"fmt"    // DSN formatting
	"io/fs"  // Missing .env detection
	"os"     // Hostname for the consumer name
	"time"   // Durations

	"github.com/joeshaw/envdecode" // Tagged environment decoding
	"github.com/joho/godotenv"     // For loading .env files
	"github.com/spf13/pflag"       // Command line overrides
)

// Service roles a process can run
const (
	RoleWallet = "wallet" // Wallet requests and execution
	RoleLedger = "ledger" // Transaction ledger, OTP and sweeper
	RoleAll    = "all"    // Both in one process
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Events   EventsConfig
	Otp      OtpConfig
	Sweeper  SweeperConfig

	IdentitySecret string `env:"IDENTITY_SECRET,default="`                // Enables signed identity tokens when set
	FallbackEmail  string `env:"FALLBACK_EMAIL,default=user@example.com"` // Used when no email is known
	LogLevel       string `env:"LOG_LEVEL,default=info"`                  // logrus level name
	LogJSON        bool   `env:"LOG_JSON,default=false"`                  // JSON formatter instead of text
}

type ServerConfig struct {
	Role            string        `env:"SERVICE_ROLE,default=all"`     // wallet, ledger or all
	Port            string        `env:"APP_PORT,default=8080"`        // Application port
	IsProd          bool          `env:"IS_PROD,default=false"`        // Gin release mode
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"` // Graceful shutdown limit
}

type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER,default=mysql"`               // mysql, postgres or sqlite
	User       string `env:"DB_USER,default=root"`                  // Database user
	Password   string `env:"DB_PASSWORD,default="`                  // Database password
	Host       string `env:"DB_HOST,default=127.0.0.1"`             // Database host
	Port       string `env:"DB_PORT,default=3306"`                  // Database port
	Name       string `env:"DB_NAME,default=wallet_saga"`           // Database name
	SSLMode    string `env:"DB_SSLMODE,default=disable"`            // postgres only
	SQLitePath string `env:"DB_SQLITE_PATH,default=wallet_saga.db"` // sqlite only
	Debug      bool   `env:"DB_DEBUG,default=false"`                // Log every statement
}

// MySQLDSN builds the Data Source Name for MySQL
func (c DatabaseConfig) MySQLDSN() string {
	return c.User + ":" + c.Password + "@tcp(" + c.Host + ":" + c.Port + ")/" + c.Name + "?parseTime=true&loc=UTC"
}

// PostgresDSN builds the keyword/value connection string for PostgreSQL
func (c DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR,default=localhost:6379"` // Redis server address
	Pass string `env:"REDIS_PASS,default="`               // Redis password
	DB   int    `env:"REDIS_DB,default=0"`                // Redis database number
}

type EventsConfig struct {
	Backend       string        `env:"EVENT_BACKEND,default=redis"`         // redis or memory
	Prefix        string        `env:"EVENT_STREAM_PREFIX,default=events:"` // Stream key prefix
	Consumer      string        `env:"EVENT_CONSUMER,default="`             // Defaults to the hostname
	Workers       int           `env:"EVENT_WORKERS,default=4"`             // Handlers run in parallel per batch
	Block         time.Duration `env:"EVENT_BLOCK,default=2s"`              // XREADGROUP block time
	MaxDeliveries int           `env:"EVENT_MAX_DELIVERIES,default=5"`      // Before an event is dropped
	RetryDelay    time.Duration `env:"EVENT_RETRY_DELAY,default=1s"`        // Pause after failures
}

// ConsumerName returns the configured consumer or the hostname
func (c EventsConfig) ConsumerName() string {
	if c.Consumer != "" {
		return c.Consumer
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "consumer"
}

type OtpConfig struct {
	Store       string        `env:"OTP_STORE,default=redis"`    // redis or memory
	TTL         time.Duration `env:"OTP_TTL,default=5m"`         // Challenge lifetime
	MaxAttempts int           `env:"OTP_MAX_ATTEMPTS,default=3"` // Wrong codes before failure
	HashCost    int           `env:"OTP_HASH_COST,default=10"`   // bcrypt cost
}

type SweeperConfig struct {
	Interval time.Duration `env:"SWEEPER_INTERVAL,default=1m"` // Tick period
	Window   time.Duration `env:"SWEEPER_WINDOW,default=5m"`   // Age after which PENDING fails
}

// FromEnv decodes the configuration from the environment only
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envdecode.StrictDecode(cfg); err != nil {
		return nil, fmt.Errorf("env decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig loads configuration from .env (if present), the environment and flags
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env load: %w", err)
	}
	cfg := &Config{}
	if err := envdecode.StrictDecode(cfg); err != nil {
		return nil, fmt.Errorf("env decode: %w", err)
	}

	pflag.StringVarP(&cfg.Server.Role, "role", "r", cfg.Server.Role, "Service role: wallet, ledger or all")
	pflag.StringVarP(&cfg.Server.Port, "port", "p", cfg.Server.Port, "Port to listen on")
	pflag.StringVarP(&cfg.Database.Driver, "db-driver", "d", cfg.Database.Driver, "Database driver: mysql, postgres or sqlite")
	pflag.StringVar(&cfg.Events.Backend, "events", cfg.Events.Backend, "Event backend: redis or memory")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	pflag.Parse()

	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	switch c.Server.Role {
	case RoleWallet, RoleLedger, RoleAll:
	default:
		return fmt.Errorf("unknown service role %q", c.Server.Role)
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Events.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown event backend %q", c.Events.Backend)
	}
	switch c.Otp.Store {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown otp store %q", c.Otp.Store)
	}
	if c.Events.Backend == "memory" && c.Server.Role != RoleAll {
		return errors.New("memory event backend requires SERVICE_ROLE=all")
	}
	if c.Otp.MaxAttempts < 1 {
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.Sweeper.Interval <= 0 || c.Sweeper.Window <= 0 {
		return errors.New("SWEEPER_INTERVAL and SWEEPER_WINDOW must be positive")
	}
	if c.Otp.TTL > c.Sweeper.Window {
		return fmt.Errorf("OTP_TTL %s exceeds SWEEPER_WINDOW %s", c.Otp.TTL, c.Sweeper.Window)
	}
	return nil
}

// Runs reports whether the process serves role
func (c *Config) Runs(role string) bool {
	return c.Server.Role == RoleAll || c.Server.Role == role
}

// UsesRedis reports whether any component needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Events.Backend == "redis" || c.Otp.Store == "redis"
}
