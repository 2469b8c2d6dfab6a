// Package http provides the HTTP server, route wiring and middleware stack:
// request logging, tenant resolution, rate limiting and the optional JWE+JWS
// envelope around the data plane.
package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	cryptoDomain "github.com/cardvault/locker/internal/crypto/domain"
	cryptoService "github.com/cardvault/locker/internal/crypto/service"
	"github.com/cardvault/locker/internal/httputil"
	"github.com/cardvault/locker/internal/tenant"
)

// LoggerMiddleware logs every request with method, path, status, duration and
// request id through slog.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", requestid.Get(c)),
			slog.String("remote_addr", c.ClientIP()),
		)
	}
}

// TenantMiddleware resolves x-tenant-id against the registry and stores the
// tenant state for downstream handlers. Unknown tenants get 401; known but
// still-locked tenants get 403.
func TenantMiddleware(registry *tenant.Registry, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := registry.State(c.GetHeader(tenant.HeaderTenantID))
		if err != nil {
			httputil.HandleErrorGin(c, err, logger)
			return
		}

		tenant.SetOnGin(c, state)
		c.Next()
	}
}

// RateLimitMiddleware sheds load with 429 once the shared token bucket is
// exhausted.
func RateLimitMiddleware(requestsPerSec, burst int, logger *slog.Logger) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(requestsPerSec), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.ErrorResponse{
				Code:    "RATE_LIMITED",
				Message: "Rate limit applied",
			})
			return
		}
		c.Next()
	}
}

// envelopeWriter buffers the handler's response body so the JOSE middleware
// can seal it before anything reaches the wire.
type envelopeWriter struct {
	gin.ResponseWriter
	body   bytes.Buffer
	status int
}

func (w *envelopeWriter) WriteHeader(code int) {
	w.status = code
}

func (w *envelopeWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *envelopeWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// JOSEMiddleware opens the JWE+JWS request envelope and seals the response.
// It must run after TenantMiddleware; tenants without envelope key material
// pass through untouched. Any parse, decryption or signature failure is the
// single opaque middleware error.
func JOSEMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := tenant.FromGin(c)
		if !ok || state.Envelope == nil {
			c.Next()
			return
		}

		var sealedRequest cryptoService.JweBody
		if err := c.ShouldBindJSON(&sealedRequest); err != nil {
			httputil.HandleErrorGin(c, cryptoDomain.ErrRequestMiddleware, logger)
			return
		}

		payload, err := state.Envelope.Decrypt(sealedRequest)
		if err != nil {
			httputil.HandleErrorGin(c, err, logger)
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(payload))
		c.Request.ContentLength = int64(len(payload))

		writer := &envelopeWriter{ResponseWriter: c.Writer, status: http.StatusOK}
		c.Writer = writer

		c.Next()

		c.Writer = writer.ResponseWriter

		sealedResponse, err := state.Envelope.Encrypt(writer.body.Bytes())
		if err != nil {
			httputil.HandleErrorGin(c, err, logger)
			return
		}

		c.JSON(writer.status, sealedResponse)
	}
}
