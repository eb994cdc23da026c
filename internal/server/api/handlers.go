package api

import (
	"errors"
	"net/http"

	"github.com/avoronov/jwt-auth/internal/httputil"
	"github.com/avoronov/jwt-auth/internal/server/services"
)

type tokensResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// login handles POST /api/v1/auth/login. An unknown email and a wrong
// password both map to 403 so the response does not leak which one it was.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSON(w, r, &req) {
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidPassword) {
			httputil.WriteForbidden(w, "invalid email or password")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, tokensResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// register handles POST /api/v1/auth/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSON(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrUserAlreadyRegistered) {
			httputil.WriteConflict(w, "user already registered")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, userResponse{ID: user.ID, Email: user.Email})
}

// refresh handles POST /api/v1/auth/refresh. The refresh-token middleware
// has already validated the presented token and its storage counterpart.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid token")
		return
	}

	pair, err := s.auth.RefreshTokens(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrRefreshTokenNotFound) {
			httputil.WriteUnauthorized(w, "invalid token")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, tokensResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// currentUser handles GET /api/v1/users/me. A valid token whose subject no
// longer exists yields 400, not 401: the credential was fine, the user is
// gone.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "missing bearer token")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		httputil.WriteUnauthorized(w, "invalid token")
		return
	}

	user, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			httputil.WriteBadRequest(w, "user not found")
			return
		}
		httputil.WriteInternalError(w)
		return
	}

	_ = httputil.WriteSuccess(w, userResponse{ID: user.ID, Email: user.Email})
}
