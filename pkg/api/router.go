// Package api implements the two TLS listener adapters in front of the
// dispatcher. Public and private listeners share the same router; they
// differ only in TLS client-authentication policy and in whether the
// executor field of inbound actions is trusted.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rangelabs/rangecloud/internal/cli/health"
	"github.com/rangelabs/rangecloud/internal/logger"
	"github.com/rangelabs/rangecloud/internal/telemetry"
	"github.com/rangelabs/rangecloud/pkg/models"
)

// Resolver routes one action and returns its reply. Implemented by the
// dispatcher.
type Resolver interface {
	Resolve(ctx context.Context, action models.Action, from string) (models.Action, error)
}

// TokenValidator is the single-shot bearer check. Implemented by the
// directory.
type TokenValidator interface {
	ValidateToken(resourceName, content string) bool
}

// RouterConfig selects the listener's policies.
type RouterConfig struct {
	// Listener names the adapter in logs and metrics: public or private.
	Listener string

	// RateLimitPerSecond caps per-peer request rates.
	RateLimitPerSecond float64

	// TrustExecutor is set on the private listener, where mTLS already
	// authenticated the peer. The public listener instead demands a
	// bearer token to act as anyone but guest.
	TrustExecutor bool
}

// NewRouter builds the chi router for one listener.
func NewRouter(cfg RouterConfig, resolver Resolver, tokens TokenValidator) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Listener))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(rateLimit(cfg.Listener, cfg.RateLimitPerSecond))

	start := time.Now()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse(start))
	})

	r.Post("/api/v1/actions", actionsHandler(cfg, resolver, tokens))

	return r
}

// actionsHandler translates one HTTP request into a dispatched action.
func actionsHandler(cfg RouterConfig, resolver Resolver, tokens TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var action models.Action
		if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
			writeError(w, http.StatusBadRequest, "malformed action payload")
			return
		}
		if action.ID == "" {
			action.ID = middleware.GetReqID(r.Context())
		}

		if !cfg.TrustExecutor {
			if !authenticateBearer(r, &action, tokens) {
				writeError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
		}

		owner := action.Executor
		if owner == "" {
			owner = models.GuestUserName
		}
		from := owner + "@" + peerAddr(r)

		ctx, span := telemetry.StartActionSpan(r.Context(), action.Name,
			telemetry.ActionID(action.ID),
			telemetry.ActionExecutor(owner),
			telemetry.Listener(cfg.Listener),
			telemetry.ClientIP(peerAddr(r)),
		)
		defer span.End()

		ctx = logger.WithContext(ctx, &logger.LogContext{
			TraceID:   telemetry.TraceID(ctx),
			SpanID:    telemetry.SpanID(ctx),
			ActionID:  action.ID,
			Action:    action.Name,
			Executor:  owner,
			Listener:  cfg.Listener,
			ClientIP:  peerAddr(r),
			StartTime: time.Now(),
		})

		resolved, err := resolver.Resolve(ctx, action, from)
		if err != nil {
			telemetry.RecordError(ctx, err)
			logger.ErrorCtx(ctx, "Action resolution failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		telemetry.SetAttributes(ctx, telemetry.ActionError(string(resolved.ErrorType)))
		writeJSON(w, http.StatusOK, resolved)
	}
}

// authenticateBearer applies the public listener's policy: a request
// without credentials is demoted to guest, a request with credentials
// must pass the one-shot token check for the executor it claims.
func authenticateBearer(r *http.Request, action *models.Action, tokens TokenValidator) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		action.Executor = ""
		return true
	}
	content, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || content == "" {
		return false
	}
	if action.Executor == "" {
		return false
	}
	return tokens.ValidateToken(action.Executor, content)
}

func healthResponse(start time.Time) health.Response {
	now := time.Now()
	resp := health.Response{
		Status:    "healthy",
		Timestamp: now.Format(time.RFC3339),
	}
	resp.Data.Service = "rangecloud"
	resp.Data.StartedAt = start.Format(time.RFC3339)
	resp.Data.Uptime = now.Sub(start).Round(time.Second).String()
	resp.Data.UptimeSec = int64(now.Sub(start).Seconds())
	return resp
}

func peerAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
