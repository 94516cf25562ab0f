package telemetry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/italolelis/playlist_archiver/internal/logctx"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request an id, reusing an upstream X-Request-ID when
// present. The id is echoed back as a response header and attached to the
// request logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)

		ctx := logctx.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
