package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/storage"
)

type userIDKey struct{}

func contextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the authenticated user id set by requireAuth.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

func (h *Handler) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid Authorization header")
			return
		}
		claims, err := h.issuer.Verify(token)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next(w, r.WithContext(contextWithUserID(r.Context(), claims.UserID())))
	})
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Provider bool   `json:"provider"`
}

const minPasswordLength = 6

// CreateUser registers an account. Setting provider makes the user bookable by others.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		badRequest(w, "name and email required")
		return
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		badRequest(w, "email is not a valid address")
		return
	}
	if len(req.Password) < minPasswordLength {
		badRequest(w, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("password hash failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to hash password")
		return
	}
	user, err := h.users.CreateUser(r.Context(), model.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Provider:     req.Provider,
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		badRequest(w, "email already registered")
		return
	}
	if err != nil {
		writeError(w, r, h.logger, apperr.Storage("create user", err))
		return
	}
	h.logger.Info("user registered", "user_id", user.ID, "provider", user.Provider)
	httpx.WriteJSON(w, http.StatusCreated, userItem{ID: user.ID, Name: user.Name, Email: user.Email, Provider: user.Provider})
}

type sessionRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	User      userItem `json:"user"`
}

type userItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Provider bool   `json:"provider"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("user lookup failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage", "service temporarily unavailable")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	token, exp, err := h.issuer.Issue(user.ID, user.Name)
	if err != nil {
		h.logger.Error("token issue failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
		User:      userItem{ID: user.ID, Name: user.Name, Email: user.Email, Provider: user.Provider},
	})
}
