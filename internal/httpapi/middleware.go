package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/auth"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/metrics"
	"github.com/osservatorio-istat/platform/internal/ratelimit"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyAPIKey    ctxKey = "api_key"
	ctxKeyClaims    ctxKey = "claims"
	ctxKeyScopes    ctxKey = "scopes"
)

// requestIDMiddleware stamps each request with a short request id, mirroring
// the teacher's uuid-prefix scheme, and echoes it back as a response header.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggingMiddleware logs every request with structured fields once
// it completes, including the status code captured via responseWrapper.
func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", requestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("httpapi: request")
	})
}

// processTimeWriter injects X-Process-Time (ms) just before the first
// header write — setting it after the handler returns would be too late,
// since headers are flushed with the status line.
type processTimeWriter struct {
	http.ResponseWriter
	start time.Time
	wrote bool
}

func (w *processTimeWriter) WriteHeader(code int) {
	if !w.wrote {
		w.wrote = true
		w.Header().Set("X-Process-Time", strconv.FormatFloat(float64(time.Since(w.start).Microseconds())/1000.0, 'f', 2, 64))
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *processTimeWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}

// processTimeMiddleware reports X-Process-Time per §6.1's response header
// contract.
func processTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&processTimeWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

// metricsMiddleware records request duration/count into the Prometheus
// registry, labeled by route template so path parameters don't fragment
// the label space.
func metricsMiddleware(reg *metrics.Registry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reg == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)
			reg.ObserveHTTPRequest(routeTemplate(r), r.Method, strconv.Itoa(wrapper.statusCode), time.Since(start).Seconds())
		})
	}
}

// corsMiddleware wraps rs/cors configured from the allowed-origins list;
// an empty list is passed through as is, and rs/cors then allows every
// origin.
func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Process-Time"},
		AllowCredentials: false,
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}

// gzipMiddleware compresses JSON/XML responses above gzhttp's default
// size threshold.
func gzipMiddleware(next http.Handler) http.Handler {
	wrapped, err := gzhttp.NewWrapper()
	if err != nil {
		log.Warn().Err(err).Msg("httpapi: gzip wrapper unavailable, serving uncompressed")
		return next
	}
	return wrapped(next)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(ctxKeyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

func apiKeyFromContext(ctx context.Context) *metadatastore.APIKey {
	if v, ok := ctx.Value(ctxKeyAPIKey).(*metadatastore.APIKey); ok {
		return v
	}
	return nil
}

func scopesFromContext(ctx context.Context) []string {
	if v, ok := ctx.Value(ctxKeyScopes).([]string); ok {
		return v
	}
	if claims := claimsFromContext(ctx); claims != nil {
		return claims.Scopes()
	}
	return nil
}

// authMiddleware accepts either a bearer JWT or a raw API key in the
// Authorization header, per §4.E. A bearer token resolves to Claims; a raw
// key resolves to the backing APIKey row, bumps its usage counter, and has
// its encrypted scope set decrypted into the request context so
// requireScope can authorize it the same way it authorizes a token.
func authMiddleware(minter *auth.TokenMinter, apiKeys *metadatastore.APIKeyRepo, scopeCrypt *auth.ScopeCipher) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, r, apperr.Unauthorized("missing bearer token"))
				return
			}

			ctx := r.Context()

			if claims, err := minter.Verify(ctx, token); err == nil {
				ctx = context.WithValue(ctx, ctxKeyClaims, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			prefix := auth.KeyPrefix(token)
			candidates, err := apiKeys.GetByPrefix(ctx, prefix)
			if err != nil {
				writeError(w, r, apperr.Wrap(apperr.KindInternal, "api key lookup failed", err))
				return
			}
			key, err := auth.VerifyKey(token, candidates, time.Now())
			if err != nil {
				writeError(w, r, err)
				return
			}
			_ = apiKeys.RecordUsage(ctx, key.ID, time.Now())

			scopes, err := scopeCrypt.Decrypt(key.ScopesEnc)
			if err != nil {
				writeError(w, r, apperr.Wrap(apperr.KindInternal, "decrypt api key scopes failed", err))
				return
			}

			ctx = context.WithValue(ctx, ctxKeyAPIKey, key)
			ctx = context.WithValue(ctx, ctxKeyScopes, scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireScope wraps handler so it 403s unless the caller's token or API
// key carries scope (or admin, which implies every scope).
func requireScope(scope string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth.HasScope(scopesFromContext(r.Context()), scope) {
			writeError(w, r, apperr.Forbidden("insufficient scope"))
			return
		}
		handler(w, r)
	}
}

// rateLimitMiddleware enforces the sliding-window budget per §4.F, keyed by
// (api_key_id, route template) rather than the raw path so that path
// parameters don't fragment the bucket space.
func rateLimitMiddleware(limiter *ratelimit.Limiter, rateLimits *metadatastore.RateLimitRepo, defaultLimit int) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKeyID, limit := identifyCaller(r.Context(), defaultLimit)
			endpoint := routeTemplate(r)

			err := limiter.Consume(apiKeyID, endpoint, limit)
			_, remaining := limiter.Usage(apiKeyID, endpoint, limit)
			resetAt := time.Now().Add(ratelimit.Window).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

			if err != nil {
				writeError(w, r, apperr.New(apperr.KindRateLimited, err.Error()))
				return
			}

			now := time.Now()
			windowStart := now.Truncate(ratelimit.Window)
			go func() {
				if _, err := rateLimits.Increment(context.Background(), apiKeyID, endpoint, windowStart, windowStart.Add(ratelimit.Window)); err != nil {
					log.Warn().Err(err).Msg("httpapi: rate limit durable increment failed")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func identifyCaller(ctx context.Context, defaultLimit int) (apiKeyID int64, limit int) {
	if key := apiKeyFromContext(ctx); key != nil {
		limit := key.RateLimit
		if limit <= 0 {
			limit = defaultLimit
		}
		return key.ID, limit
	}
	if claims := claimsFromContext(ctx); claims != nil {
		return claims.APIKeyID, defaultLimit
	}
	return 0, defaultLimit
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// auditMiddleware records one audit row per authenticated request,
// capturing the outcome status for later forensic queries (§4.A, §13).
func auditMiddleware(audit *metadatastore.AuditRepo) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			apiKeyID, _ := identifyCaller(r.Context(), 0)
			entry := &metadatastore.AuditEntry{
				UserID:          strconv.FormatInt(apiKeyID, 10),
				Action:          r.Method,
				ResourceType:    "http_route",
				ResourceID:      routeTemplate(r),
				Success:         wrapper.statusCode < 400,
				ExecutionTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
				ClientIP:        r.RemoteAddr,
				UserAgent:       r.UserAgent(),
				Details: map[string]interface{}{
					"request_id": requestIDFromContext(r.Context()),
					"status":     wrapper.statusCode,
				},
			}
			if wrapper.statusCode >= 400 {
				entry.ErrorMessage = http.StatusText(wrapper.statusCode)
			}
			go func() {
				if err := audit.Insert(context.Background(), nil, entry); err != nil {
					log.Warn().Err(err).Msg("httpapi: audit insert failed")
				}
			}()
		})
	}
}
