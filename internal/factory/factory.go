package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lms-auth/internal/bucketing"
	"lms-auth/internal/client"
	"lms-auth/internal/config"
	"lms-auth/internal/events"
	"lms-auth/internal/hashing"
	"lms-auth/internal/otp"
	"lms-auth/internal/repository/scylla"
	"lms-auth/internal/service"
	"lms-auth/internal/session"
	"lms-auth/internal/store"
	"lms-auth/internal/util"
)

// Factory manages the lifecycle of all application dependencies. Managers
// receive their store and repository handles explicitly; nothing reaches
// into ambient global state, so tests can substitute in-memory fakes.
type Factory struct {
	config *config.Config

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.ScyllaClient
	kafkaProducer *client.KafkaProducer

	// Managers
	hasher           *hashing.Hasher
	bucketingManager *bucketing.Manager
	sessionStore     store.Store
	sessionManager   *session.Manager
	otpManager       *otp.Manager
	publisher        events.Publisher

	// Repositories and services
	credentialRepo scylla.CredentialRepository
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.initializeManagers()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	return factory, nil
}

// initializeClients initializes external service clients with health checks.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = c
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if c, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = c
		if err := f.scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka is optional: auth must keep working without the event stream
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)

	if f.redisClient != nil {
		f.sessionStore = store.NewRedis(f.redisClient)
	} else {
		// Development fallback only; sessions do not survive a restart.
		util.Warn("Redis unavailable - using in-memory session store")
		f.sessionStore = store.NewMemory()
	}

	f.sessionManager = session.NewManager(f.sessionStore, f.config.Session.TTL)
	f.otpManager = otp.NewManager(
		f.sessionStore,
		f.hasher,
		f.bucketingManager,
		f.config.OTP.ExpiryWindow,
		f.config.OTP.MaxAttempts,
	)

	if f.kafkaProducer != nil {
		f.publisher = events.NewKafkaPublisher(f.kafkaProducer, f.config.Kafka.Topic)
	} else {
		f.publisher = events.NopPublisher{}
	}

	util.Info("Managers initialized successfully")
}

// CredentialRepository returns the Scylla-backed credential repository.
func (f *Factory) CredentialRepository() scylla.CredentialRepository {
	if f.credentialRepo == nil {
		f.credentialRepo = scylla.NewCredentialRepository(
			f.scyllaClient,
			f.bucketingManager,
			util.Get(),
		)
	}
	return f.credentialRepo
}

func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.CredentialRepository(),
			f.hasher,
			f.sessionManager,
			f.otpManager,
			f.publisher,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// HealthCheck runs all client health checks concurrently.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		healthErrors[name] = err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if f.redisClient == nil {
			record("redis", fmt.Errorf("redis client not initialized"))
			return nil
		}
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			record("redis", err)
		}
		return nil
	})

	g.Go(func() error {
		if f.scyllaClient == nil {
			record("scylla", fmt.Errorf("scylla client not initialized"))
			return nil
		}
		if err := f.scyllaClient.HealthCheck(); err != nil {
			record("scylla", err)
		}
		return nil
	})

	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

// Getters

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) OTPManager() *otp.Manager {
	return f.otpManager
}

func (f *Factory) SessionManager() *session.Manager {
	return f.sessionManager
}
