package mongovcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
)

// Client wraps a mongo.Client with connection monitoring and automatic
// reconnection.
//
// Concurrency: the active *mongo.Client is kept in an atomic pointer and can
// be swapped during reconnection without blocking readers.
type Client struct {
	cfg             Config
	uri             string
	info            *ConnInfo
	logger          logger.Logger
	client          atomic.Pointer[mongo.Client]
	shutdownSignal  chan struct{}
	retryChanSignal chan error

	closeRetryChanOnce sync.Once
	closeShutdownOnce  sync.Once
}

// NewClient connects to the cluster described by cfg and pings it. log may be nil.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	uri, err := BuildConnectionString(cfg)
	if err != nil {
		return nil, err
	}
	info, err := ParseConnectionString(uri)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:             cfg,
		uri:             uri,
		info:            info,
		logger:          log,
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}

	conn, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("error in connecting to mongo vcore cluster: %w", err)
	}
	c.client.Store(conn)
	return c, nil
}

func (c *Client) connect() (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(c.uri).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetServerSelectionTimeout(c.cfg.ConnectTimeout)
	if c.cfg.AppName != "" {
		opts.SetAppName(c.cfg.AppName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, TranslateError(fmt.Errorf("failed to connect to %s: %w", c.info.Redacted(), err))
	}
	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		_ = conn.Disconnect(context.Background())
		return nil, TranslateError(fmt.Errorf("failed to reach %s: %w", c.info.Redacted(), err))
	}

	c.logInfo("Successfully connected to mongo vcore cluster", map[string]interface{}{
		"hosts":    c.info.Hosts,
		"database": c.cfg.Database,
	})
	return conn, nil
}

// Mongo returns the current driver client.
func (c *Client) Mongo() *mongo.Client {
	return c.client.Load()
}

// Collection returns the configured collection on the current client.
func (c *Client) Collection() *mongo.Collection {
	return c.Mongo().Database(c.cfg.Database).Collection(c.cfg.Collection)
}

// Database returns the configured database on the current client.
func (c *Client) Database() *mongo.Database {
	return c.Mongo().Database(c.cfg.Database)
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
						c.logError("mongo vcore reconnection failed", err)
						time.Sleep(time.Second)
						continue innerLoop
					}
					if old := c.client.Swap(newConn); old != nil {
						_ = old.Disconnect(context.Background())
					}
					c.logInfo("Successfully reconnected to mongo vcore cluster", nil)
					continue outerLoop
				}
			}
		}
	}
}

// MonitorConnection pings the primary every 10 seconds and signals
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
	conn := c.Mongo()
	if conn == nil {
		return fmt.Errorf("mongo client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping failed during health check: %w", err)
	}
	return nil
}

// GracefulShutdown signals the monitor loops to stop and disconnects.
func (c *Client) GracefulShutdown() error {
	c.closeShutdownOnce.Do(func() {
		close(c.shutdownSignal)
	})

	conn := c.Mongo()
	if conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := conn.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
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
