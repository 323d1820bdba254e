package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	tokengate "github.com/tokengate/tokengate"
	"github.com/tokengate/tokengate/middleware"
)

var validate = validator.New()

// Handler serves the auth routes.
type Handler struct {
	engine *tokengate.Engine
}

// NewRouter mounts every auth route on a fresh chi router. Mount it under
// the path prefix of your choice, e.g. r.Mount("/auth", httpapi.NewRouter(engine)).
func NewRouter(engine *tokengate.Engine) chi.Router {
	h := &Handler{engine: engine}

	r := chi.NewRouter()
	r.Use(clientIP)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.Guard(engine))
		pr.Get("/protected", h.Protected)
	})

	return r
}

// clientIP records the caller's address in the request context so the
// engine's rate limiter and audit events can see it.
func clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		next.ServeHTTP(w, r.WithContext(tokengate.WithClientIP(r.Context(), host)))
	})
}

type registerRequest struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=255"`
	Secret     string `json:"secret" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type registerResponse struct {
	Identity     tokengate.Identity `json:"identity"`
	AccessToken  string             `json:"accessToken"`
	RefreshToken string             `json:"refreshToken"`
}

type loginResponse struct {
	IdentityID   string `json:"identityId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type logoutResponse struct {
	Success bool `json:"success"`
	Revoked bool `json:"revoked"`
}

type protectedResponse struct {
	UserID    string `json:"userId"`
	TokenID   string `json:"tokenId"`
	ExpiresAt int64  `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.engine.Register(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Identity:     result.Identity,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.engine.Login(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		IdentityID:   result.UserID,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	revoked, err := h.engine.Logout(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutResponse{Success: true, Revoked: revoked})
}

func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		writeError(w, tokengate.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, protectedResponse{
		UserID:    res.UserID,
		TokenID:   res.TokenID,
		ExpiresAt: res.ExpiresAt.Unix(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, out any) bool {
	if !decodeBody(w, r, out) {
		return false
	}
	if err := validate.Struct(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFromError(err), errorResponse{Error: publicMessage(err)})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, tokengate.ErrValidation),
		errors.Is(err, tokengate.ErrAccountExists),
		errors.Is(err, tokengate.ErrInvalidCredentials),
		errors.Is(err, tokengate.ErrMissingToken),
		errors.Is(err, tokengate.ErrRefreshNotFound):
		return http.StatusBadRequest
	case errors.Is(err, tokengate.ErrTokenInvalid),
		errors.Is(err, tokengate.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, tokengate.ErrLoginRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, tokengate.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage keeps sentinel text for expected outcomes and hides
// everything else behind a generic message.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		tokengate.ErrValidation,
		tokengate.ErrAccountExists,
		tokengate.ErrInvalidCredentials,
		tokengate.ErrMissingToken,
		tokengate.ErrRefreshNotFound,
		tokengate.ErrTokenInvalid,
		tokengate.ErrUnauthorized,
		tokengate.ErrLoginRateLimited,
		tokengate.ErrStoreUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
