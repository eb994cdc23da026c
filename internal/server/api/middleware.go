package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avoronov/jwt-auth/internal/common"
	"github.com/avoronov/jwt-auth/internal/httputil"
	"github.com/avoronov/jwt-auth/internal/server/auth"
	"github.com/avoronov/jwt-auth/internal/server/services"
)

type ctxKey string

const (
	claimsKey    ctxKey = "claims"
	requestIDKey ctxKey = "requestID"
)

const requestIDHeader = "X-Request-Id"

// claimsFromContext returns the validated token claims attached by the
// bearer middlewares.
func claimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// requireAccessToken validates the bearer access token and attaches its
// claims to the request context.
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := s.validator.ValidateAccessToken(token)
		if err != nil {
			writeTokenError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRefreshToken validates the bearer refresh token (signature, expiry,
// type) and then checks it against the stored one; a rotated or revoked
// token fails here even though its signature is still valid.
func (s *Server) requireRefreshToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, "missing bearer token")
			return
		}

		claims, err := s.validator.ValidateRefreshToken(token)
		if err != nil {
			writeTokenError(w, err)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid token")
			return
		}

		if err := s.auth.CheckRefreshToken(r.Context(), userID, token); err != nil {
			if errors.Is(err, services.ErrRefreshTokenNotFound) {
				httputil.WriteUnauthorized(w, "invalid token")
				return
			}
			s.logger.Error(r.Context(), "refresh token check failed", "error", err)
			httputil.WriteInternalError(w)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		httputil.WriteUnauthorized(w, "token expired")
	case errors.Is(err, common.ErrInvalidToken):
		httputil.WriteUnauthorized(w, "invalid token")
	default:
		httputil.WriteInternalError(w)
	}
}

// requestIDMiddleware tags every request with an id, honoring one supplied
// by the caller.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.logger.Info(r.Context(), "request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration", time.Since(start).String(),
			"request_id", requestID,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
