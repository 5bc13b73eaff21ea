package handler

import (
	"context"
	"net/http"

	"github.com/cenamoradol/crm-autolote-backend/internal/middleware"
	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"github.com/cenamoradol/crm-autolote-backend/pkg/jwtutil"
	"github.com/cenamoradol/crm-autolote-backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UserFinder looks up a global identity by email.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// AuthHandler issues bearer tokens for global identities.
type AuthHandler struct {
	users UserFinder
	jwt   *jwtutil.JWTUtil
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(users UserFinder, jwt *jwtutil.JWTUtil) *AuthHandler {
	return &AuthHandler{users: users, jwt: jwt}
}

// Login validates credentials and returns a signed token.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	user, err := h.users.FindUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		log.Error("user lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if user == nil || !user.CheckPassword(req.Password) {
		log.Warn("login rejected", zap.String("email", req.Email))
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	token, err := h.jwt.GenerateToken(user.Email, user.ID, user.IsSuperAdmin)
	if err != nil {
		log.Error("token generation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":             user.ID,
			"email":          user.Email,
			"full_name":      user.FullName,
			"is_super_admin": user.IsSuperAdmin,
		},
	})
}

// Me returns the caller's identity and the resolved tenant context.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := middleware.ClaimsFromEcho(c)
	if claims == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user": echo.Map{
			"id":             claims.UserID,
			"email":          claims.Email,
			"is_super_admin": claims.IsSuperAdmin,
		},
		"tenant": middleware.TenantFromEcho(c),
	})
}
