package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
)

// TokenProvider returns an access token used as the connection password.
// It is called for every new physical connection, so implementations should
// cache tokens until shortly before they expire.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenProviderFunc adapts a function to TokenProvider.
type TokenProviderFunc func(ctx context.Context) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Client wraps a gorm.DB with connection monitoring and automatic
// reconnection.
//
// Concurrency: the active *gorm.DB is kept in an atomic pointer and can be
// swapped during reconnection without blocking readers.
type Client struct {
	cfg             Config
	logger          logger.Logger
	client          atomic.Pointer[gorm.DB]
	shutdownSignal  chan struct{}
	retryChanSignal chan error

	closeRetryChanOnce sync.Once
	closeShutdownOnce  sync.Once
}

// NewClient opens the connection described by cfg. log may be nil.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:             cfg,
		logger:          log,
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}

	conn, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("error in connecting to pgvector database: %w", err)
	}
	c.client.Store(conn)
	return c, nil
}

// connect opens a gorm.DB on top of a pgx stdlib pool. When the connection
// string carries no credentials and a TokenProvider is configured, every new
// connection authenticates with a fresh token.
func (c *Client) connect() (*gorm.DB, error) {
	dsn, info, err := BuildConnectionString(c.cfg)
	if err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string %s: %w", info.Redacted(), err)
	}

	var opts []stdlib.OptionOpenDB
	if info.RequiresTokenAuth() && c.cfg.TokenProvider != nil {
		opts = append(opts, stdlib.OptionBeforeConnect(tokenBeforeConnect(c.cfg.TokenProvider)))
		c.logInfo("Using token authentication", map[string]interface{}{"host": info.Host})
	}

	sqlDB := stdlib.OpenDB(*connConfig, opts...)
	c.configurePool(sqlDB)

	database, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError:       true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, TranslateError(fmt.Errorf("failed to reach %s: %w", info.Redacted(), err))
	}

	c.logInfo("Successfully connected to pgvector database", map[string]interface{}{
		"host":     info.Host,
		"database": info.Database,
	})
	return database, nil
}

// tokenBeforeConnect sets the password of each new connection to a fresh token.
func tokenBeforeConnect(provider TokenProvider) func(context.Context, *pgx.ConnConfig) error {
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, err := provider.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire access token: %w", err)
		}
		cc.Password = token
		return nil
	}
}

func (c *Client) configurePool(db *sql.DB) {
	maxOpen := c.cfg.ConnectionDetails.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 50
	}
	maxIdle := c.cfg.ConnectionDetails.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 25
	}
	maxLifetime := c.cfg.ConnectionDetails.ConnMaxLifetime
	if maxLifetime == 0 {
		maxLifetime = time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}

// DB returns the current gorm handle.
func (c *Client) DB() *gorm.DB {
	return c.client.Load()
}

// RetryConnection waits for failure signals from MonitorConnection and
// reconnects until it succeeds, the context is cancelled, or the client shuts down.
func (c *Client) RetryConnection(ctx context.Context) {
outerLoop:
	for {
		select {
		case <-c.shutdownSignal:
			return
		case <-ctx.Done():
			return
		case _, ok := <-c.retryChanSignal:
			if !ok {
				return
			}
		innerLoop:
			for {
				select {
				case <-c.shutdownSignal:
					return
				case <-ctx.Done():
					return
				default:
					newConn, err := c.connect()
					if err != nil {
						c.logError("pgvector reconnection failed", err)
						time.Sleep(time.Second)
						continue innerLoop
					}
					old := c.client.Swap(newConn)
					if old != nil {
						if sqlDB, err := old.DB(); err == nil {
							_ = sqlDB.Close()
						}
					}
					c.logInfo("Successfully reconnected to pgvector database", nil)
					continue outerLoop
				}
			}
		}
	}
}

// MonitorConnection pings the database every 10 seconds and signals
// RetryConnection when a ping fails.
func (c *Client) MonitorConnection(ctx context.Context) {
	defer c.closeRetryChanOnce.Do(func() {
		close(c.retryChanSignal)
	})

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdownSignal:
			return
		case <-ticker.C:
			if err := c.healthCheck(ctx); err != nil {
				select {
				case c.retryChanSignal <- err:
				default:
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) healthCheck(ctx context.Context) error {
	dbConn := c.DB()
	if dbConn == nil {
		return fmt.Errorf("database client is not initialized")
	}

	db, err := dbConn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance during health check: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed during health check: %w", err)
	}
	return nil
}

// GracefulShutdown signals the monitor loops to stop and closes the pool.
func (c *Client) GracefulShutdown() error {
	// The retry channel is closed by MonitorConnection once it has observed
	// the shutdown signal, so it is never closed under a pending send.
	c.closeShutdownOnce.Do(func() {
		close(c.shutdownSignal)
	})

	if db := c.DB(); db != nil {
		sqlDB, err := db.DB()
		if err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

func (c *Client) logInfo(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, nil, fields)
	}
}

func (c *Client) logError(msg string, err error) {
	if c.logger != nil {
		c.logger.Error(msg, err, nil)
	}
}
