/*
tenant.go - Tenant header middleware

PURPOSE:
  Resolves the tenant from a request header once, at the edge, and stores
  it in the request context. Everything downstream (handlers, service,
  cache) reads the tenant from the context and never from HTTP types.

CONTRACT:
  Requests without the header are rejected with 400 before any handler
  runs. There is no cross-tenant escape hatch: a request acts on exactly
  one tenant's data.
*/
package api

import (
	"net/http"

	"github.com/warp/attendance-engine/calendar"
)

// DefaultTenantHeader is used when no header name is configured.
const DefaultTenantHeader = "X-Tenant-ID"

// RequireTenant extracts the tenant from the named header and stores it
// in the request context.
func RequireTenant(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultTenantHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := r.Header.Get(header)
			if tenant == "" {
				writeError(w, http.StatusBadRequest, "Missing tenant header", nil)
				return
			}
			ctx := calendar.WithTenant(r.Context(), calendar.TenantID(tenant))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
