package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/planhub-io/planhub/internal/auth"
	"github.com/planhub-io/planhub/internal/db"
	"github.com/planhub-io/planhub/internal/repository"
)

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const (
	// contextKeyIdentity holds the resolved *auth.Identity after token
	// validation.
	contextKeyIdentity contextKey = iota

	// contextKeyIdentityHolder holds the *identityHolder installed by
	// RequestLogger before authentication runs.
	contextKeyIdentityHolder
)

// identityHolder lets RequestLogger, which wraps the chain from the outside,
// observe the identity that Authenticate resolves further down.
type identityHolder struct {
	identity *auth.Identity
}

// Authenticate validates the Bearer token and resolves the caller's user
// and session. On success the identity is stored in the request context; on
// failure the chain stops with a 401.
func Authenticate(authSvc *auth.Service, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				Detail(w, http.StatusUnauthorized, "Authentification requise")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				Detail(w, http.StatusUnauthorized, "Authentification requise")
				return
			}

			identity, err := authSvc.ValidateToken(r.Context(), parts[1])
			if err != nil {
				writeError(w, log, err)
				return
			}

			if holder, ok := r.Context().Value(contextKeyIdentityHolder).(*identityHolder); ok {
				holder.identity = identity
			}

			ctx := context.WithValue(r.Context(), contextKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on one capability. Must run after
// Authenticate.
func RequirePermission(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFromCtx(r.Context())
			if identity == nil {
				Detail(w, http.StatusUnauthorized, "Authentification requise")
				return
			}
			if !auth.HasCapability(identity.User, capability) {
				Detail(w, http.StatusForbidden, fmt.Sprintf("Permission '%s' requise", capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSystemAdmin gates a route on the is_system_admin flag, over and
// above any capability. Used by backup restore.
func RequireSystemAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromCtx(r.Context())
		if identity == nil {
			Detail(w, http.StatusUnauthorized, "Authentification requise")
			return
		}
		if !identity.User.IsSystemAdmin {
			Detail(w, http.StatusForbidden, "Réservé à l'administrateur système")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every request through zap and records it in the
// api_request_logs table. The record is written after the response,
// independent of any domain transaction, so a rolled-back mutation still
// leaves its trace.
func RequestLogger(log *zap.Logger, requests *repository.RequestLogRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Authenticate stores the resolved identity in the holder; the
			// context value it adds is only visible downstream of it.
			holder := &identityHolder{}
			r = r.WithContext(context.WithValue(r.Context(), contextKeyIdentityHolder, holder))
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			username := ""
			if holder.identity != nil {
				username = holder.identity.User.Username
			}

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", elapsed),
				zap.String("username", username),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)

			ms := elapsed.Milliseconds()
			entry := &db.ApiRequestLog{
				Method:         r.Method,
				Path:           r.URL.Path,
				QueryParams:    r.URL.RawQuery,
				Username:       username,
				ClientIP:       clientIP(r),
				StatusCode:     ww.Status(),
				ResponseTimeMs: &ms,
			}
			// Detached from the request context, which may already be done.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := requests.Append(ctx, entry); err != nil {
				log.Error("request log append failed", zap.Error(err))
			}
		})
	}
}

// identityFromCtx retrieves the identity stored by Authenticate, or nil.
func identityFromCtx(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextKeyIdentity).(*auth.Identity)
	return identity
}

// clientIP returns the client address without the port. chi's RealIP
// middleware has already unwrapped any proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		return strings.Trim(addr[:i], "[]")
	}
	return addr
}
