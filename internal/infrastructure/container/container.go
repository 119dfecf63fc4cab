package container

import (
	"context"
	"errors"
	"fmt"

	"booking-engine/internal/domain/repository"
	"booking-engine/internal/infrastructure/config"
	"booking-engine/internal/infrastructure/messaging"
	"booking-engine/internal/infrastructure/oauth"
	"booking-engine/internal/infrastructure/persistence"
	"booking-engine/internal/infrastructure/scheduler"
	repoImpl "booking-engine/internal/interface/repository"
	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"
	"booking-engine/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Container holds the wired stores, collaborators and use cases
type Container struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Clock   clockwork.Clock

	Bookings   repository.BookingRepository
	Audits     repository.AuditRepository
	Dispatcher *usecase.AsyncDispatcher
	Engine     *usecase.BookingEngine
	Payments   *usecase.PaymentReconciler
	Expiry     *usecase.ExpiryReconciler

	// SweepLock is nil when no Redis is configured
	SweepLock scheduler.Locker

	db        *gorm.DB
	mongo     *mongo.Client
	redis     *redis.Client
	publisher *messaging.Publisher
}

// New connects the configured backends and builds the use cases
func New(ctx context.Context, cfg *config.Config, log logger.Logger, m *metrics.Metrics) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: m,
		Clock:   clockwork.NewRealClock(),
	}
	if err := c.build(ctx); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg := c.Config
	log := c.Logger

	// Booking store
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		log.Info("Connecting to PostgreSQL")
		db, err := persistence.NewPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		c.db = db
		if err := repoImpl.MigrateBookings(db); err != nil {
			return fmt.Errorf("failed to migrate bookings: %w", err)
		}
		c.Bookings = repoImpl.NewGormBookingRepository(db, c.Clock)
	default:
		log.Warn("Using in-memory booking store")
		c.Bookings = repoImpl.NewMemoryBookingRepository(c.Clock)
	}

	// Audit trail
	if cfg.MongoURI != "" {
		log.Info("Connecting to MongoDB")
		client, db, err := persistence.NewAuditDatabase(ctx, persistence.MongoConfig{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDB,
			Username: cfg.MongoUser,
			Password: cfg.MongoPassword,
			AppName:  "booking-engine",
		})
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.mongo = client
		c.Audits = repoImpl.NewMongoAuditRepository(db)
	} else {
		log.Warn("MONGODB_DSN not set, audit trail kept in memory")
		c.Audits = repoImpl.NewMemoryAuditRepository()
	}

	// Cross-replica sweep lock
	if cfg.RedisURL != "" {
		rdb, err := persistence.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.redis = rdb
		c.SweepLock = scheduler.NewRedisLock(rdb)
	}

	// Lifecycle events
	var events repository.EventRepository
	if cfg.RabbitURL != "" {
		pub, err := messaging.NewPublisher(cfg.RabbitURL, cfg.EventExchange)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.publisher = pub
		events = repoImpl.NewBrokerEventRepository(pub, log)
	} else {
		log.Warn("RABBIT_URL not set, lifecycle events are only logged")
		events = repoImpl.NewLogEventRepository(log)
	}

	// Collaborators
	httpClient := oauth.NewServiceClient(ctx, oauth.ServiceCredentials{
		StaticToken:  cfg.ServiceToken,
		ClientID:     cfg.ServiceClientID,
		ClientSecret: cfg.ServiceClientSecret,
		TokenURL:     cfg.ServiceTokenURL,
	}, cfg.UpstreamTimeout)
	resources := repoImpl.NewHTTPResourceRepository(cfg.ResourceServiceURL, httpClient, log)
	gateway := repoImpl.NewHTTPPaymentGatewayRepository(cfg.PaymentGatewayURL, cfg.PaymentGatewaySlug, httpClient, log)
	var quoter repository.PriceQuoteRepository
	if cfg.PricingServiceURL != "" {
		quoter = repoImpl.NewHTTPPriceQuoteRepository(cfg.PricingServiceURL, httpClient, log)
	}

	// Use cases
	policy := usecase.DefaultRetryPolicy()
	policy.Timeout = cfg.UpstreamTimeout
	policy.MaxRetries = cfg.UpstreamMaxRetries
	c.Dispatcher = usecase.NewAsyncDispatcher(cfg.EffectWorkers, cfg.EffectQueueSize, policy, log, c.Metrics)
	c.Dispatcher.Start()

	effects := usecase.NewEffectFactory(resources, events, c.Audits)
	c.Engine = usecase.NewBookingEngine(c.Bookings, c.Audits, quoter, effects, c.Dispatcher, c.Clock, log, c.Metrics,
		usecase.EngineOptions{TrustClientPricing: cfg.TrustClientPricing})
	c.Payments = usecase.NewPaymentReconciler(c.Bookings, gateway, effects, c.Dispatcher, c.Clock, log, c.Metrics, cfg.PaymentCallbackURL)
	c.Expiry = usecase.NewExpiryReconciler(c.Bookings, c.Audits, effects, c.Dispatcher, c.Clock, log, c.Metrics, cfg.SweepBatchSize)
	return nil
}

// Close drains pending side effects, then disconnects every backend
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rabbitmq: %w", err))
		}
	}
	if c.mongo != nil {
		if err := c.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb: %w", err))
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if c.db != nil {
		if sqlDB, err := c.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("postgres: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
