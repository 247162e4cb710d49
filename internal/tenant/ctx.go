// Package tenant resolves and scopes the tenant a request or sync cycle is
// operating for. Both isolation strategies (database-per-tenant and
// row-level) start from the same resolved tenant string.
package tenant

import (
	"context"
	"regexp"
)

// Default scopes single-tenant deployments.
const Default = "default"

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidName reports whether t is acceptable as a tenant identifier. Tenant
// names flow into DSN templates and file paths, so only a conservative
// character set is allowed.
func ValidName(t string) bool {
	return namePattern.MatchString(t)
}

type ctxKey int

const tenantCtxKey ctxKey = 1

func With(ctx context.Context, tenant string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantCtxKey, tenant)
}

// From returns the tenant carried by ctx, or Default when none was resolved.
func From(ctx context.Context) string {
	if ctx == nil {
		return Default
	}
	if t, _ := ctx.Value(tenantCtxKey).(string); t != "" {
		return t
	}
	return Default
}
