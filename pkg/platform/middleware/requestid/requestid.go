// Package requestid assigns every request a correlation ID.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"usiverify/pkg/requestcontext"
)

// Header carries the correlation ID in both directions.
const Header = "X-Request-ID"

// maxInboundLength bounds caller-supplied IDs so they cannot bloat logs.
const maxInboundLength = 128

// Middleware reuses a caller-supplied X-Request-ID or generates a UUID, stores
// it in the context, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > maxInboundLength {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
