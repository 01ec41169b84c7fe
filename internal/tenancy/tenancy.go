// Package tenancy sets the session-local variables the row-level-security
// policies key off. The variables are set transaction-locally inside the same
// transaction as the queries they protect, so a pooled connection can never
// leak stale tenant context into another request.
package tenancy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session variable names referenced by the database policies.
const (
	VarUserID   = "app.current_user_id"
	VarTenantID = "app.current_tenant_id"
)

// WithTenant runs fn inside a transaction whose session variables carry the
// caller's external user id and the resolved internal tenant id. The
// transaction commits when fn returns nil and rolls back otherwise.
func WithTenant(ctx context.Context, pool *pgxpool.Pool, userExternalID string, tenantID uuid.UUID, fn func(tx pgx.Tx) error) error {
	return withVars(ctx, pool, userExternalID, tenantID.String(), fn)
}

// WithoutTenant runs fn inside a transaction with both variables reset to
// empty, for anonymous or no-tenant contexts. The policies then match no
// tenant-scoped rows.
func WithoutTenant(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	return withVars(ctx, pool, "", "", fn)
}

func withVars(ctx context.Context, pool *pgxpool.Pool, userID, tenantID string, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// set_config with is_local=true scopes the setting to this transaction.
	if _, err := tx.Exec(ctx, `SELECT set_config($1, $2, true), set_config($3, $4, true)`,
		VarUserID, userID, VarTenantID, tenantID); err != nil {
		return fmt.Errorf("set tenant context: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
