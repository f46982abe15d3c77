package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/tenantguard/pkg/permstore"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

const commandTimeout = 30 * time.Second

// openStore connects to the permission store. Tests replace it.
var openStore = func(ctx context.Context, dbURL string) (*permstore.SQLStore, func() error, error) {
	if dbURL == "" {
		return nil, nil, errors.New("--db or TENANTGUARD_POSTGRES_URL is required")
	}
	conns, err := permstore.Connect(ctx, permstore.ConnectionConfig{
		PrimaryURL: dbURL,
		MaxConns:   2,
		MinConns:   1,
		Timeout:    5 * time.Second,
	}, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := permstore.Migrate(ctx, conns.Primary(), nil); err != nil {
		conns.Close()
		return nil, nil, err
	}
	return permstore.NewSQLStore(conns, nil), conns.Close, nil
}

// withStore runs fn against the store and invalidates the shared cache for
// actorID afterwards when a redis URL is configured
func withStore(cmd *cobra.Command, opts *options, actorID string, fn func(context.Context, *permstore.SQLStore) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()

	store, closeStore, err := openStore(ctx, opts.dbURL)
	if err != nil {
		return fmt.Errorf("open permission store: %w", err)
	}
	defer closeStore()

	if err := fn(ctx, store); err != nil {
		return err
	}
	if actorID == "" || opts.redisURL == "" {
		return nil
	}
	return invalidateShared(ctx, opts.redisURL, store, actorID)
}

// invalidateShared bumps the actor's version in the shared cache. Every
// authzd replica compares that version on each cache hit, so the change is
// picked up on the next check.
func invalidateShared(ctx context.Context, redisURL string, store *permstore.SQLStore, actorID string) error {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	defer client.Close()

	cache := permstore.NewRedisStore(client, store, permstore.RedisOptions{})
	if err := cache.Invalidate(ctx, actorID); err != nil {
		return fmt.Errorf("invalidate shared cache for %s: %w", actorID, err)
	}
	return nil
}

func parsePermissions(args []string) ([]rbac.Permission, error) {
	perms := make([]rbac.Permission, 0, len(args))
	for _, arg := range args {
		p, err := rbac.ParsePermission(arg)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// ---------- grant ----------

func newGrantCmd(opts *options) *cobra.Command {
	var actorID, tenant, grantedBy string

	cmd := &cobra.Command{
		Use:   "grant --actor ID PERMISSION...",
		Short: "Grant dynamic permissions to an actor",
		Long: `Grant adds permissions on top of the actor's role. Grants are scoped to a
tenant; an actor holds them only while acting in that tenant.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perms, err := parsePermissions(args)
			if err != nil {
				return err
			}
			return withStore(cmd, opts, actorID, func(ctx context.Context, store *permstore.SQLStore) error {
				for _, p := range perms {
					err := store.Grant(ctx, permstore.Grant{
						ActorID:    actorID,
						TenantID:   rbac.TenantID(tenant),
						Permission: p,
						GrantedBy:  grantedBy,
					})
					if err != nil {
						return fmt.Errorf("grant %s: %w", p, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", p, actorID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor receiving the grant")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant the grant applies in")
	cmd.Flags().StringVar(&grantedBy, "by", "", "who is granting, recorded with the grant")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

// ---------- revoke ----------

func newRevokeCmd(opts *options) *cobra.Command {
	var actorID, tenant string
	var all bool

	cmd := &cobra.Command{
		Use:   "revoke --actor ID [--all | PERMISSION...]",
		Short: "Revoke dynamic permissions from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("pass either --all or at least one permission")
			}
			perms, err := parsePermissions(args)
			if err != nil {
				return err
			}
			return withStore(cmd, opts, actorID, func(ctx context.Context, store *permstore.SQLStore) error {
				out := cmd.OutOrStdout()
				if all {
					n, err := store.RevokeAll(ctx, actorID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "revoked %d grants from %s\n", n, actorID)
					return nil
				}
				for _, p := range perms {
					if err := store.Revoke(ctx, actorID, rbac.TenantID(tenant), p); err != nil {
						return fmt.Errorf("revoke %s: %w", p, err)
					}
					fmt.Fprintf(out, "revoked %s from %s\n", p, actorID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor losing the grant")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant the grant applies in")
	cmd.Flags().BoolVar(&all, "all", false, "revoke every grant the actor holds in every tenant")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}

// ---------- grants ----------

func newGrantsCmd(opts *options) *cobra.Command {
	var actorID, tenant string

	cmd := &cobra.Command{
		Use:   "grants --actor ID",
		Short: "List an actor's dynamic grants in a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, "", func(ctx context.Context, store *permstore.SQLStore) error {
				grants, err := store.ListGrants(ctx, actorID, rbac.TenantID(tenant))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if opts.jsonOut {
					return writeJSON(out, grants)
				}
				if len(grants) == 0 {
					fmt.Fprintf(out, "No dynamic grants for %s.\n", actorID)
					return nil
				}
				fmt.Fprintf(out, "%-28s %-16s %s\n", "PERMISSION", "GRANTED BY", "GRANTED AT")
				for _, g := range grants {
					fmt.Fprintf(out, "%-28s %-16s %s\n", g.Permission, g.GrantedBy, g.GrantedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "actor to list")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant to list grants in")
	_ = cmd.MarkFlagRequired("actor")

	return cmd
}
