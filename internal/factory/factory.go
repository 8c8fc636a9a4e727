package factory

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"workflow-dashboard/internal/bucketing"
	"workflow-dashboard/internal/client"
	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/encryption"
	"workflow-dashboard/internal/handler"
	"workflow-dashboard/internal/hashing"
	"workflow-dashboard/internal/mailer"
	"workflow-dashboard/internal/ratelimit"
	"workflow-dashboard/internal/repository"
	"workflow-dashboard/internal/repository/memory"
	"workflow-dashboard/internal/repository/postgres"
	redisrepo "workflow-dashboard/internal/repository/redis"
	"workflow-dashboard/internal/service"
	"workflow-dashboard/internal/tls"
	"workflow-dashboard/internal/token"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	// Clients
	store         repository.Store
	redisClient   *client.RedisClient
	kafkaProducer *client.KafkaProducer
	n8nClient     *client.N8NClient

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	tokenManager      *token.Manager
	limiter           *ratelimit.Limiter
	mailer            mailer.Sender

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory builds every dependency for cfg. Clients that fail to connect
// abort construction; nothing is retried.
func NewFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{
		config: cfg,
		logger: logger,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		m, err := tls.NewTLSManager(cfg.Server, logger.Named("tls"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tls: %w", err)
		}
		f.tlsManager = m
	}

	if err := f.initializeClients(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	f.serviceFactory = service.NewServiceFactory(service.Dependencies{
		Store:   f.store,
		Tokens:  f.tokenManager,
		Hasher:  f.hasher,
		Mailer:  f.mailer,
		Sealer:  f.encryptionManager,
		N8N:     f.n8nClient,
		CodeTTL: cfg.Auth.CodeTTL,
		Logger:  logger,
	})

	logger.Info("Factory initialized successfully",
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.Database.Driver),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.String("mail_transport", cfg.Mail.Transport),
		zap.Bool("tls_enabled", cfg.Server.EnableTLS),
		zap.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

// initializeClients connects the store and whichever external services the
// configuration selects.
func (f *Factory) initializeClients(ctx context.Context) error {
	cfg := f.config

	switch cfg.Database.Driver {
	case "postgres":
		store, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		f.store = store
		f.logger.Info("Postgres store initialized", zap.Bool("migrations", cfg.Database.RunMigrations))
	default:
		if cfg.IsProduction() {
			f.logger.Warn("Using in-memory store in production; data is lost on restart")
		}
		f.store = memory.NewStore()
	}

	if cfg.RateLimit.Backend == "redis" {
		rc, err := client.NewRedisClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = rc
	}

	if cfg.Mail.Transport == "kafka" {
		producer, err := client.NewKafkaProducer(cfg.Kafka, f.logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		f.kafkaProducer = producer
	}

	f.n8nClient = client.NewN8NClient(cfg.N8N.Timeout, f.logger.Named("n8n"))
	return nil
}

// initializeManagers initializes hashing, encryption, tokens, rate limiting and mail
func (f *Factory) initializeManagers(ctx context.Context) error {
	cfg := f.config

	f.hasher = hashing.NewHasher(cfg.Hashing)

	em, err := f.newEncryptionManager(ctx)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	f.encryptionManager = em

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		if !cfg.IsDevelopment() {
			return errors.New("JWT_SECRET is required outside development")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		f.logger.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}
	tm, err := token.NewManager(token.Config{
		Secret:     secret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.TrustTTL,
		Issuer:     "workflow-dashboard",
	})
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}
	f.tokenManager = tm

	f.bucketingManager = bucketing.NewBucketingManager(cfg.RateLimit.Shards)
	var backend ratelimit.Backend = ratelimit.NewMemoryBackend(f.bucketingManager)
	if f.redisClient != nil {
		backend = ratelimit.NewRedisBackend(redisrepo.NewRateLimitCache(f.redisClient))
	}
	f.limiter = ratelimit.NewLimiter(
		ratelimit.TableFromConfig(cfg.RateLimit.Routes),
		backend,
		f.logger.Named("ratelimit"),
		ratelimit.WithTimeout(cfg.RateLimit.BackendTimeout),
	)

	sender, err := f.newMailer()
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	f.mailer = mailer.WithTimeout(sender, cfg.Mail.Timeout)

	f.logger.Info("Managers initialized successfully",
		zap.String("encryption_mode", f.encryptionManager.Mode()),
		zap.Int("rate_limit_shards", f.bucketingManager.Buckets()),
		zap.Int("rate_limited_routes", len(f.limiter.Table())),
	)
	return nil
}

func (f *Factory) newEncryptionManager(ctx context.Context) (*encryption.EncryptionManager, error) {
	cfg := f.config.KMS
	if cfg.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return encryption.NewKMSEncryptionManager(kms.NewFromConfig(awsCfg), cfg.KeyID)
	}

	key, generated, err := encryption.ParseMasterKey(cfg.MasterKey)
	if err != nil {
		return nil, err
	}
	if generated {
		if f.config.IsProduction() {
			return nil, errors.New("ENCRYPTION_MASTER_KEY or KMS is required in production")
		}
		f.logger.Warn("ENCRYPTION_MASTER_KEY not set; stored API keys will be unreadable after restart")
	}
	return encryption.NewLocalEncryptionManager(key)
}

func (f *Factory) newMailer() (mailer.Sender, error) {
	cfg := f.config.Mail
	switch cfg.Transport {
	case "smtp":
		return mailer.NewSMTPSender(cfg, f.logger.Named("smtp"))
	case "kafka":
		if f.kafkaProducer == nil {
			return nil, errors.New("kafka producer not initialized")
		}
		return mailer.NewKafkaSender(f.kafkaProducer, cfg.Topic, f.logger.Named("mail")), nil
	default:
		return mailer.NewLogSender(f.logger.Named("mail")), nil
	}
}

// Router builds the HTTP handler tree.
func (f *Factory) Router() http.Handler {
	services := f.serviceFactory
	logger := f.logger
	return handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(services.AuthService(), f.config.Auth, logger.Named("auth")),
		Accounts:       handler.NewAccountHandler(services.AccountService(), logger.Named("accounts")),
		Workflows:      handler.NewWorkflowHandler(services.WorkflowService(), logger.Named("workflows")),
		Health:         handler.NewHealthHandler(f, logger),
		Validator:      services.AuthService(),
		Limiter:        f.limiter,
		EdgeHeader:     f.config.RateLimit.EdgeHeader,
		AllowedOrigins: f.config.Server.AllowedOrigins,
		RequestTimeout: f.config.Server.RequestTimeout,
		RequireHTTPS:   f.config.Server.RequireHTTPS,
		Logger:         logger,
	})
}

// ==============================
// Health Checks
// ==============================

// HealthCheck pings every connected dependency concurrently and returns the failures.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var (
		mu           sync.Mutex
		healthErrors = make(map[string]error)
	)
	record := func(name string, err error) {
		if err != nil {
			mu.Lock()
			healthErrors[name] = err
			mu.Unlock()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		record("store", f.store.HealthCheck(gctx))
		return nil
	})
	if f.redisClient != nil {
		g.Go(func() error {
			record("redis", f.redisClient.HealthCheck(gctx))
			return nil
		})
	}
	if f.kafkaProducer != nil {
		g.Go(func() error {
			record("kafka", f.kafkaProducer.HealthCheck(gctx))
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	return len(f.HealthCheck(ctx)) == 0
}

func (f *Factory) DegradedCount() int64 {
	return f.limiter.DegradedCount()
}

func (f *Factory) RateLimitBackend() string {
	if f.redisClient != nil {
		return "redis"
	}
	return "memory"
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.logger.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				f.logger.Error("Failed to close Kafka producer", zap.Error(err))
			}
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				f.logger.Error("Failed to close Redis client", zap.Error(err))
			}
		}

		if f.store != nil {
			if err := f.store.Close(); err != nil {
				f.logger.Error("Failed to close store", zap.Error(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		f.logger.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// TLSManager is nil when TLS is disabled.
func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Limiter() *ratelimit.Limiter {
	return f.limiter
}

func (f *Factory) Store() repository.Store {
	return f.store
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	return f.serviceFactory
}
