package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration, assembled from the environment.
type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Mail        MailConfig
	Kafka       KafkaConfig
	KMS         KMSConfig
	Hashing     HashingConfig
	N8N         N8NConfig
}

type ServerConfig struct {
	Port           int
	TLSPort        int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	RequireHTTPS   bool

	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	JWTSecret        string
	AccessTTL        time.Duration
	TrustTTL         time.Duration
	CodeTTL          time.Duration
	AccessCookieName string
	TrustCookieName  string
	SecureCookies    bool
}

type DatabaseConfig struct {
	Driver          string // memory | postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int

	// Client certificate material for rediss:// URLs.
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string
}

type RateLimitConfig struct {
	Backend        string // memory | redis
	BackendTimeout time.Duration
	SweepInterval  time.Duration
	Shards         int
	EdgeHeader     string
	Routes         map[string]RoutePolicy
}

// RoutePolicy is the raw per-route limit as configured.
type RoutePolicy struct {
	MaxRequests int
	Window      time.Duration
}

type MailConfig struct {
	Transport string // log | smtp | kafka
	Timeout   time.Duration
	From      string
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	Topic     string
}

type KafkaConfig struct {
	Brokers []string
	TLS     bool
	GroupID string
}

type KMSConfig struct {
	Enabled   bool
	Region    string
	KeyID     string
	MasterKey string
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
}

type N8NConfig struct {
	Timeout time.Duration
}

var (
	globalConfig *Config
	loadOnce     sync.Once
)

// DefaultRoutes is the route table applied when RATE_LIMIT_ROUTES does not override an entry.
func DefaultRoutes() map[string]RoutePolicy {
	return map[string]RoutePolicy{
		"/api/auth/login":               {MaxRequests: 5, Window: 15 * time.Minute},
		"/api/auth/verify-code":         {MaxRequests: 3, Window: 5 * time.Minute},
		"/api/auth/refresh":             {MaxRequests: 20, Window: 15 * time.Minute},
		"/api/n8n-accounts/create":      {MaxRequests: 10, Window: time.Hour},
		"/api/n8n-accounts/delete":      {MaxRequests: 20, Window: time.Hour},
		"/api/n8n-accounts/set-default": {MaxRequests: 30, Window: time.Minute},
		"/api/n8n-accounts/list":        {MaxRequests: 60, Window: time.Minute},
		"/api/workflows":                {MaxRequests: 60, Window: time.Minute},
		"/api/workflows/toggle":         {MaxRequests: 30, Window: time.Minute},
	}
}

// LoadConfig reads an optional .env file and then the process environment.
// The result is cached; later calls return the same instance.
func LoadConfig() *Config {
	loadOnce.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("config: could not load .env: %v", err)
		}
		globalConfig = FromEnv()
	})
	return globalConfig
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	return LoadConfig()
}

// FromEnv builds a Config from the current environment without caching.
func FromEnv() *Config {
	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			TLSPort:        getEnvInt("TLS_PORT", 8443),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout: getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RequireHTTPS:   getEnvBool("REQUIRE_HTTPS", false),
			EnableTLS:      getEnvBool("TLS_ENABLED", false),
			AutoCert:       getEnvBool("TLS_AUTOCERT", false),
			Domain:         getEnv("TLS_DOMAIN", "localhost"),
			CertFile:       getEnv("TLS_CERT_FILE", ""),
			KeyFile:        getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:    getEnv("TLS_AUTOCERT_DIR", "./certs"),
			Email:          getEnv("TLS_EMAIL", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", defaultLogFormat(env)),
		},
		Auth: AuthConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			AccessTTL:        getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
			TrustTTL:         getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			CodeTTL:          getEnvDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			AccessCookieName: getEnv("ACCESS_COOKIE_NAME", "accessToken"),
			TrustCookieName:  getEnv("REFRESH_COOKIE_NAME", "refreshToken"),
			SecureCookies:    getEnvBool("SECURE_COOKIES", env == "production"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", "memory"),
			DSN:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			RunMigrations:   getEnvBool("DATABASE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),

			TLSCAFile:   getEnv("REDIS_TLS_CA_FILE", "/app/certs/ca.crt"),
			TLSCertFile: getEnv("REDIS_TLS_CERT_FILE", "/app/certs/redis.crt"),
			TLSKeyFile:  getEnv("REDIS_TLS_KEY_FILE", "/app/certs/redis.key"),
		},
		RateLimit: RateLimitConfig{
			Backend:        getEnv("RATE_LIMIT_BACKEND", "memory"),
			BackendTimeout: getEnvDuration("RATE_LIMIT_BACKEND_TIMEOUT", 250*time.Millisecond),
			SweepInterval:  getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute),
			Shards:         getEnvInt("RATE_LIMIT_SHARDS", 32),
			EdgeHeader:     getEnv("RATE_LIMIT_EDGE_HEADER", "CF-Connecting-IP"),
			Routes:         DefaultRoutes(),
		},
		Mail: MailConfig{
			Transport: getEnv("MAIL_TRANSPORT", "log"),
			Timeout:   getEnvDuration("MAIL_TIMEOUT", 10*time.Second),
			From:      getEnv("MAIL_FROM", ""),
			SMTPHost:  getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:  getEnvInt("SMTP_PORT", 587),
			SMTPUser:  getEnv("SMTP_USER", ""),
			SMTPPass:  getEnv("SMTP_PASS", ""),
			Topic:     getEnv("MAIL_KAFKA_TOPIC", "verification-codes"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TLS:     getEnvBool("KAFKA_TLS", false),
			GroupID: getEnv("KAFKA_GROUP_ID", "mail-worker"),
		},
		KMS: KMSConfig{
			Enabled:   getEnvBool("KMS_ENABLED", false),
			Region:    getEnv("AWS_REGION", "us-east-1"),
			KeyID:     getEnv("KMS_KEY_ID", ""),
			MasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_KB", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_ITERATIONS", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			Pepper:            getEnv("PASSWORD_PEPPER", ""),
		},
		N8N: N8NConfig{
			Timeout: getEnvDuration("N8N_TIMEOUT", 15*time.Second),
		},
	}

	if raw := os.Getenv("RATE_LIMIT_ROUTES"); raw != "" {
		overrides, err := ParseRoutes(raw)
		if err != nil {
			log.Printf("config: ignoring RATE_LIMIT_ROUTES: %v", err)
		} else {
			for route, policy := range overrides {
				cfg.RateLimit.Routes[route] = policy
			}
		}
	}

	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.SMTPUser
	}

	return cfg
}

// ParseRoutes parses "route=max:window,route=max:window".
func ParseRoutes(raw string) (map[string]RoutePolicy, error) {
	routes := make(map[string]RoutePolicy)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		route, limit, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("invalid route entry %q", entry)
		}
		maxStr, windowStr, ok := strings.Cut(limit, ":")
		if !ok {
			return nil, fmt.Errorf("invalid limit %q for route %s", limit, route)
		}
		max, err := strconv.Atoi(maxStr)
		if err != nil || max <= 0 {
			return nil, fmt.Errorf("invalid max requests %q for route %s", maxStr, route)
		}
		window, err := time.ParseDuration(windowStr)
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("invalid window %q for route %s", windowStr, route)
		}
		routes[strings.TrimSpace(route)] = RoutePolicy{MaxRequests: max, Window: window}
	}
	return routes, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver))
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	switch c.Mail.Transport {
	case "log":
		if c.IsProduction() {
			errs = append(errs, errors.New("MAIL_TRANSPORT=log is not allowed in production"))
		}
	case "smtp":
		if c.Mail.SMTPHost == "" || c.Mail.From == "" {
			errs = append(errs, errors.New("SMTP_HOST and MAIL_FROM are required for smtp transport"))
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required for kafka transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport))
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		errs = append(errs, errors.New("KMS_KEY_ID is required when KMS is enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func defaultLogFormat(env string) string {
	if env == "production" {
		return "json"
	}
	return "console"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: invalid integer for %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: invalid boolean for %s=%q, using %t", key, value, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("config: invalid duration for %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
