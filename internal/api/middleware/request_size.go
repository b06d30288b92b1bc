package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize caps public and member request bodies at 1MB.
	DefaultMaxBodySize int64 = 1 << 20

	// AdminMaxBodySize caps admin request bodies at 5MB, leaving room
	// for large broadcast recipient lists.
	AdminMaxBodySize int64 = 5 << 20
)

// RequestSize wraps the body with http.MaxBytesReader so oversized
// payloads fail the first read with 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// PublicRequestSize limits request bodies to 1MB.
func PublicRequestSize() func(http.Handler) http.Handler {
	return RequestSize(DefaultMaxBodySize)
}

// AdminRequestSize limits request bodies to 5MB.
func AdminRequestSize() func(http.Handler) http.Handler {
	return RequestSize(AdminMaxBodySize)
}
