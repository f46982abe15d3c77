package permstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

const backendPostgres = "postgres"

var (
	// ErrUnknownPermission is returned when granting a permission that is
	// not in the catalog
	ErrUnknownPermission = errors.New("permstore: unknown permission")

	// ErrGrantNotFound is returned when revoking a grant that does not exist
	ErrGrantNotFound = errors.New("permstore: grant not found")
)

// Grant is one dynamic permission held by an actor in a tenant
type Grant struct {
	ActorID    string          `json:"actor_id"`
	TenantID   rbac.TenantID   `json:"tenant_id,omitempty"`
	Permission rbac.Permission `json:"permission"`
	GrantedBy  string          `json:"granted_by,omitempty"`
	GrantedAt  time.Time       `json:"granted_at"`
}

// SQLStore keeps dynamic grants in the actor_permissions table
type SQLStore struct {
	conns   *ConnectionManager
	metrics *observability.Metrics
}

// NewSQLStore creates a store over conns. Reads go to a replica when one is
// configured.
func NewSQLStore(conns *ConnectionManager, metrics *observability.Metrics) *SQLStore {
	return &SQLStore{conns: conns, metrics: metrics}
}

// FetchPermissions returns the raw permission strings granted to actorID in
// tenantID. Unknown strings are returned as stored; filtering happens in the
// resolver.
//
// Fetches read the primary. A replica may still hold a revoked grant right
// after an invalidation, and the result is cached until the next one.
func (s *SQLStore) FetchPermissions(ctx context.Context, actorID string, tenantID rbac.TenantID) (perms []string, err error) {
	defer s.observe("fetch", time.Now(), &err)

	rows, err := s.conns.Primary().QueryContext(ctx,
		"SELECT permission FROM actor_permissions WHERE actor_id = $1 AND tenant_id = $2 ORDER BY permission",
		actorID, string(tenantID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer rows.Close()

	perms = []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read permissions: %w", err)
	}
	return perms, nil
}

// Grant adds a dynamic permission. Granting an existing permission is a no-op.
func (s *SQLStore) Grant(ctx context.Context, g Grant) (err error) {
	defer s.observe("grant", time.Now(), &err)

	if g.ActorID == "" {
		return errors.New("actor id is required")
	}
	if !rbac.Known(g.Permission) {
		return fmt.Errorf("%w: %s", ErrUnknownPermission, g.Permission)
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}

	_, err = s.conns.Primary().ExecContext(ctx, `
		INSERT INTO actor_permissions (actor_id, tenant_id, permission, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id, tenant_id, permission) DO NOTHING
	`, g.ActorID, string(g.TenantID), g.Permission.String(), g.GrantedBy, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to grant %s: %w", g.Permission, err)
	}
	return nil
}

// Revoke removes a dynamic permission
func (s *SQLStore) Revoke(ctx context.Context, actorID string, tenantID rbac.TenantID, perm rbac.Permission) (err error) {
	defer s.observe("revoke", time.Now(), &err)

	res, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM actor_permissions WHERE actor_id = $1 AND tenant_id = $2 AND permission = $3",
		actorID, string(tenantID), perm.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", perm, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke %s: %w", perm, err)
	}
	if n == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// RevokeAll removes every grant the actor holds in any tenant and returns
// how many were removed
func (s *SQLStore) RevokeAll(ctx context.Context, actorID string) (n int64, err error) {
	defer s.observe("revoke_all", time.Now(), &err)

	res, err := s.conns.Primary().ExecContext(ctx, "DELETE FROM actor_permissions WHERE actor_id = $1", actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke grants: %w", err)
	}
	return res.RowsAffected()
}

// ListGrants returns the grants held by actorID in tenantID. It reads a
// replica and may lag recent writes.
func (s *SQLStore) ListGrants(ctx context.Context, actorID string, tenantID rbac.TenantID) (grants []Grant, err error) {
	defer s.observe("list", time.Now(), &err)

	rows, err := s.conns.Replica().QueryContext(ctx, `
		SELECT permission, granted_by, granted_at
		FROM actor_permissions
		WHERE actor_id = $1 AND tenant_id = $2
		ORDER BY permission
	`, actorID, string(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		g := Grant{ActorID: actorID, TenantID: tenantID}
		if err := rows.Scan(&raw, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		// Rows written outside Grant may not parse; they are skipped here
		// and dropped by the resolver as well
		p, perr := rbac.ParsePermission(raw)
		if perr != nil {
			continue
		}
		g.Permission = p
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *SQLStore) observe(op string, start time.Time, err *error) {
	if s.metrics != nil {
		s.metrics.ObserveStoreOperation(op, backendPostgres, start, *err)
	}
}
