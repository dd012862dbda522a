package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/model"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone" validate:"max=30"`
	Address  string `json:"address" validate:"max=255"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// issueTokens creates an access token and a stored refresh token for u.
func (h *AuthHandler) issueTokens(c echo.Context, u model.User) (echo.Map, error) {
	ctx, cancel := requestCtx(c)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, u.Email, h.Cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return echo.Map{
		"user":               u,
		"token":              access.Token,
		"expires_at":         access.Exp,
		"refresh_token":      refresh.Raw, // raw back to client
		"refresh_expires_at": refresh.Exp,
	}, nil
}

// Register creates a customer account and returns tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = repository.NormalizeEmail(req.Email)

	if err := c.Validate(&req); err != nil {
		fields := utils.FieldErrors(err)
		switch {
		case utils.HasTag(fields, "required"):
			return fail(c, http.StatusBadRequest, "name, email and password are required")
		case fields["email"] != "":
			return fail(c, http.StatusBadRequest, "invalid email format")
		case fields["password"] != "":
			return fail(c, http.StatusBadRequest, "password must be at least 6 characters")
		}
		return validationError(err)
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u := model.User{Name: req.Name, Email: req.Email, Role: model.RoleUser, Phone: req.Phone, Address: req.Address}
	uid, err := h.Users.Create(ctx, u, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return fail(c, http.StatusConflict, "email is already registered")
		}
		return err
	}
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = uid, now, now

	out, err := h.issueTokens(c, u)
	if err != nil {
		return err
	}
	out["message"] = "user registered successfully"
	return ok(c, http.StatusCreated, out)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	req.Email = repository.NormalizeEmail(req.Email)
	if err := c.Validate(&req); err != nil {
		return fail(c, http.StatusBadRequest, "email and password are required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return fail(c, http.StatusUnauthorized, "invalid credentials")
	}

	out, err := h.issueTokens(c, u)
	if err != nil {
		return err
	}
	out["message"] = "login successful"
	return ok(c, http.StatusOK, out)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fail(c, http.StatusBadRequest, "refresh token is required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token")
		}
		return err
	}
	// Revoking is the gate: of two refreshes racing on one token only the
	// one whose UPDATE hits the row gets a new pair.
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token")
		}
		return err
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return fail(c, http.StatusUnauthorized, "invalid refresh token")
		}
		return err
	}

	out, err := h.issueTokens(c, u)
	if err != nil {
		return err
	}
	out["message"] = "token refreshed"
	return ok(c, http.StatusOK, out)
}

// Logout revokes either the refresh token in the body or, when the body is
// empty and a valid bearer token is present, every refresh token of that
// user.  It does not require the JWT middleware.
func (h *AuthHandler) Logout(c echo.Context) error {
	var uid uint64
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		if claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer ")); err == nil {
			uid, _ = claims.UserID()
		}
	}

	// Invalid JSON simply leaves the refresh token empty; the header might
	// suffice.
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := requestCtx(c)
	defer cancel()

	switch {
	case refreshToken != "":
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrTokenInvalid) {
				return fail(c, http.StatusUnauthorized, "invalid refresh token")
			}
			return err
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrTokenInvalid) {
				return fail(c, http.StatusUnauthorized, "invalid refresh token")
			}
			return err
		}
		return ok(c, http.StatusOK, echo.Map{"message": "logged out successfully"})
	case uid != 0:
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return err
		}
		return ok(c, http.StatusOK, echo.Map{"message": "logged out from all sessions"})
	}
	return fail(c, http.StatusBadRequest, "provide an Authorization header or refresh_token")
}
