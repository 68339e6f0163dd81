package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskhub-api/domain"
)

// RegisterAuth wires up the register and login routes. Only called when the
// service issues its own tokens; with an external identity provider these
// endpoints do not exist.
func RegisterAuth(e *echo.Echo, store Storage, issuer *TokenIssuer, logger *log.Logger) {
	e.POST("/auth/register", registerUser(store, issuer, logger))
	e.POST("/auth/login", loginUser(store, issuer, logger))
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userSummary struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

func registerUser(store Storage, issuer *TokenIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req registerRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email == "" || req.Password == "" {
			return jsonError(c, http.StatusBadRequest, "email and password are required")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		user := domain.User{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         strings.TrimSpace(req.Name),
			PasswordHash: string(hash),
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.CreateUser(ctx, user); err != nil {
			var conflict ConflictError
			if errors.As(err, &conflict) {
				return jsonError(c, http.StatusBadRequest, "email already registered")
			}
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		token, err := issuer.Issue(user)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		logger.WithFields(log.Fields{"user_id": user.ID}).Info("user registered")
		return c.JSON(http.StatusOK, authResponse{
			Token: token,
			User:  userSummary{UserID: user.ID, Email: user.Email, Name: user.Name},
		})
	}
}

func loginUser(store Storage, issuer *TokenIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var req loginRequest
		if err := decodeBody(c.Request().Body, &req); err != nil {
			return jsonError(c, http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			return jsonError(c, http.StatusBadRequest, "email and password are required")
		}

		user, err := store.GetUserByEmail(ctx, req.Email)
		if err != nil {
			var notFound NotFoundError
			if errors.As(err, &notFound) {
				// Unknown email and wrong password are indistinguishable.
				return jsonError(c, http.StatusUnauthorized, "invalid credentials")
			}
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			return jsonError(c, http.StatusUnauthorized, "invalid credentials")
		}

		token, err := issuer.Issue(user)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, err.Error())
		}

		logger.WithFields(log.Fields{"user_id": user.ID}).Info("user logged in")
		return c.JSON(http.StatusOK, authResponse{
			Token: token,
			User:  userSummary{UserID: user.ID, Email: user.Email, Name: user.Name},
		})
	}
}
