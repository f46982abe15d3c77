package permstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionManager holds the primary connection used for grants and
// optional read replicas used for permission fetches
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
}

// Connect opens the primary and every reachable replica. A replica that
// cannot be reached is logged and skipped.
func Connect(ctx context.Context, cfg ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	primary, err := openPool(ctx, cfg.PrimaryURL, cfg.MaxConns, cfg)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	replicaMaxConns := cfg.MaxConns / 2
	if replicaMaxConns < 2 {
		replicaMaxConns = 2
	}

	var replicas []*sql.DB
	for i, url := range cfg.ReplicaURLs {
		replica, err := openPool(ctx, url, replicaMaxConns, cfg)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("skipping unreachable read replica")
			continue
		}
		replicas = append(replicas, replica)
	}

	logger.WithField("replicas", len(replicas)).Info("permission database connected")
	return NewConnectionManager(primary, replicas...), nil
}

func openPool(ctx context.Context, url string, maxConns int, cfg ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewConnectionManager wraps already opened pools
func NewConnectionManager(primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{primary: primary, replicas: replicas}
}

// Primary returns the primary database connection (for writes)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// RemoveUnhealthyReplicas closes and drops replicas that fail a ping
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(cm.replicas))
	removed := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
			continue
		}
		healthy = append(healthy, replica)
	}
	cm.replicas = healthy
	return removed
}

// Close closes all database connections
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close: %w", err))
	}
	for i, replica := range cm.replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close: %w", i, err))
		}
	}
	cm.replicas = nil
	return errors.Join(errs...)
}
