package server

import (
	"net/http"
	"time"

	"github.com/GPTx-global/flightoracle/oracle/log"
)

// loggingMiddleware logs method, uri, duration and response code of every
// request.
func loggingMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		respWriter := newResponseWriter(w)
		handler.ServeHTTP(respWriter, req)

		entry := log.WithFields(log.Fields{
			"method":        req.Method,
			"uri":           req.RequestURI,
			"client_ip":     req.RemoteAddr,
			"duration":      time.Since(start),
			"response_code": respWriter.statusCode,
		})
		if respWriter.statusCode < http.StatusBadRequest {
			entry.Debug("api")
		} else {
			entry.Warn("api")
		}
	})
}

// responseWriter captures the response code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
