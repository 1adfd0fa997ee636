// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/allisson/piivault/internal/config"
	"github.com/allisson/piivault/internal/database"
	"github.com/allisson/piivault/internal/fieldcrypt"
	"github.com/allisson/piivault/internal/http"
	"github.com/allisson/piivault/internal/metrics"
	userHTTP "github.com/allisson/piivault/internal/user/http"
	userRepository "github.com/allisson/piivault/internal/user/repository"
	userUsecase "github.com/allisson/piivault/internal/user/usecase"
)

// Container holds all application dependencies and provides methods to access
// them. Components are created lazily on first access.
type Container struct {
	config *config.Config

	logger    *slog.Logger
	db        *sql.DB
	txManager database.TxManager

	fieldCodec  *fieldcrypt.Codec
	fieldHasher *fieldcrypt.Hasher

	userRepo userUsecase.UserRepository

	userUseCase     userUsecase.UseCase
	backfillUseCase *userUsecase.BackfillUseCase

	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	httpServer    *http.Server
	metricsServer *http.MetricsServer

	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	fieldKeysInit       sync.Once
	userRepoInit        sync.Once
	userUseCaseInit     sync.Once
	backfillUseCaseInit sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		var err error
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["txManager"] = fmt.Errorf("failed to get database for tx manager: %w", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// FieldCodec returns the field encryption codec.
func (c *Container) FieldCodec() (*fieldcrypt.Codec, error) {
	if err := c.ensureFieldKeys(); err != nil {
		return nil, err
	}
	return c.fieldCodec, nil
}

// FieldHasher returns the blind index hasher.
func (c *Container) FieldHasher() (*fieldcrypt.Hasher, error) {
	if err := c.ensureFieldKeys(); err != nil {
		return nil, err
	}
	return c.fieldHasher, nil
}

// ensureFieldKeys loads the master key, optionally unwrapping it through the
// configured KMS, and derives the codec and hasher from it. The derived key
// material is wiped once the codec and hasher hold their own copies.
func (c *Container) ensureFieldKeys() error {
	c.fieldKeysInit.Do(func() {
		codec, hasher, err := c.initFieldKeys()
		if err != nil {
			c.initErrors["fieldKeys"] = err
			return
		}
		c.fieldCodec = codec
		c.fieldHasher = hasher
	})
	if storedErr, exists := c.initErrors["fieldKeys"]; exists {
		return storedErr
	}
	return nil
}

// UserRepository returns the user repository instance.
func (c *Container) UserRepository() (userUsecase.UserRepository, error) {
	c.userRepoInit.Do(func() {
		repo, err := c.initUserRepository()
		if err != nil {
			c.initErrors["userRepo"] = err
			return
		}
		c.userRepo = repo
	})
	if storedErr, exists := c.initErrors["userRepo"]; exists {
		return nil, storedErr
	}
	return c.userRepo, nil
}

// UserUseCase returns the user use case instance.
func (c *Container) UserUseCase() (userUsecase.UseCase, error) {
	c.userUseCaseInit.Do(func() {
		useCase, err := c.initUserUseCase()
		if err != nil {
			c.initErrors["userUseCase"] = err
			return
		}
		c.userUseCase = useCase
	})
	if storedErr, exists := c.initErrors["userUseCase"]; exists {
		return nil, storedErr
	}
	return c.userUseCase, nil
}

// BackfillUseCase returns the blind index backfill use case instance.
func (c *Container) BackfillUseCase() (*userUsecase.BackfillUseCase, error) {
	c.backfillUseCaseInit.Do(func() {
		useCase, err := c.initBackfillUseCase()
		if err != nil {
			c.initErrors["backfillUseCase"] = err
			return
		}
		c.backfillUseCase = useCase
	})
	if storedErr, exists := c.initErrors["backfillUseCase"]; exists {
		return nil, storedErr
	}
	return c.backfillUseCase, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		provider, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = provider
	})
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. A no-op recorder is
// returned when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = err
			return
		}
		if provider == nil {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		bm, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = bm
	})
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the HTTP server instance.
func (c *Container) HTTPServer() (*http.Server, error) {
	c.httpServerInit.Do(func() {
		server, err := c.initHTTPServer()
		if err != nil {
			c.initErrors["httpServer"] = err
			return
		}
		c.httpServer = server
	})
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the metrics server instance, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	c.metricsServerInit.Do(func() {
		provider, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["metricsServer"] = err
			return
		}
		if provider == nil {
			return
		}
		c.metricsServer = http.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initFieldKeys loads the master key and derives the field encryption codec
// and the blind index hasher from it.
func (c *Container) initFieldKeys() (*fieldcrypt.Codec, *fieldcrypt.Hasher, error) {
	masterKey, err := fieldcrypt.LoadMasterKey(context.Background(), c.config.FieldKey, c.config.KMSKeyURI)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load field master key: %w", err)
	}

	keys, err := fieldcrypt.DeriveKeys(masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive field keys: %w", err)
	}
	defer keys.Zero()

	codec, err := fieldcrypt.NewCodec(keys.Encryption[:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create field codec: %w", err)
	}

	hasher, err := fieldcrypt.NewHasher(keys.BlindIndex[:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create blind index hasher: %w", err)
	}

	return codec, hasher, nil
}

// initUserRepository creates the user repository for the configured driver.
func (c *Container) initUserRepository() (userUsecase.UserRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for user repository: %w", err)
	}

	switch c.config.DBDriver {
	case "mysql":
		return userRepository.NewMySQLUserRepository(db), nil
	case "postgres":
		return userRepository.NewPostgreSQLUserRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initUserUseCase creates the user use case with all its dependencies.
func (c *Container) initUserUseCase() (userUsecase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for user use case: %w", err)
	}

	userRepo, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for user use case: %w", err)
	}

	codec, err := c.FieldCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to get field codec for user use case: %w", err)
	}

	hasher, err := c.FieldHasher()
	if err != nil {
		return nil, fmt.Errorf("failed to get field hasher for user use case: %w", err)
	}

	useCase, err := userUsecase.NewUserUseCase(txManager, userRepo, codec, hasher)
	if err != nil {
		return nil, fmt.Errorf("failed to create user use case: %w", err)
	}

	return useCase, nil
}

// initBackfillUseCase creates the backfill use case with all its dependencies.
func (c *Container) initBackfillUseCase() (*userUsecase.BackfillUseCase, error) {
	userRepo, err := c.UserRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get user repository for backfill use case: %w", err)
	}

	codec, err := c.FieldCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to get field codec for backfill use case: %w", err)
	}

	hasher, err := c.FieldHasher()
	if err != nil {
		return nil, fmt.Errorf("failed to get field hasher for backfill use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for backfill use case: %w", err)
	}

	return userUsecase.NewBackfillUseCase(userRepo, codec, hasher, c.Logger(), businessMetrics), nil
}

// initHTTPServer creates the HTTP server with all its dependencies.
func (c *Container) initHTTPServer() (*http.Server, error) {
	logger := c.Logger()

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	userUseCase, err := c.UserUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get user use case for http server: %w", err)
	}

	userHandler := userHTTP.NewUserHandler(userUseCase, logger)

	var extraMiddleware []gin.HandlerFunc

	extraMiddleware = append(extraMiddleware,
		http.CORSMiddleware(c.config.CORSEnabled, c.config.CORSAllowOrigins, logger))

	if c.config.RateLimitEnabled {
		extraMiddleware = append(extraMiddleware,
			http.RateLimitMiddleware(c.config.RateLimitRequestsPerSec, c.config.RateLimitBurst, logger))
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}
	if provider != nil {
		extraMiddleware = append(extraMiddleware,
			metrics.HTTPMetricsMiddleware(provider.MeterProvider(), c.config.MetricsNamespace))
	}

	server := http.NewServer(
		db,
		c.config.ServerHost,
		c.config.ServerPort,
		logger,
		userHandler,
		extraMiddleware...,
	)

	return server, nil
}
