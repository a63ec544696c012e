// internal/handler/user_auth.go
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/legendisdaname/whatsapp-platform-backend/internal/middleware"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return ErrorResponse(c, http.StatusBadRequest, "username, email and password are required")
	}

	user, err := service.Register(req.Username, req.Email, req.Password, req.FullName)
	if err != nil {
		return ErrorResponse(c, http.StatusBadRequest, err.Error())
	}
	return SuccessResponse(c, http.StatusCreated, "user registered", user.ToResponse())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}

	user, tokens, err := service.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return ErrorResponse(c, http.StatusUnauthorized, "invalid username or password")
		}
		return err
	}

	return SuccessResponse(c, http.StatusOK, "login successful", echo.Map{
		"user":   user.ToResponse(),
		"tokens": tokens,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return ErrorResponse(c, http.StatusBadRequest, "refresh_token is required")
	}

	tokens, err := service.Refresh(req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			return ErrorResponse(c, http.StatusUnauthorized, "invalid or expired refresh token")
		}
		return err
	}
	return SuccessResponse(c, http.StatusOK, "token refreshed", tokens)
}

func Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return ErrorResponse(c, http.StatusBadRequest, "refresh_token is required")
	}
	if err := service.Logout(req.RefreshToken); err != nil {
		return err
	}
	return SuccessResponse(c, http.StatusOK, "logged out", nil)
}

func Me(c echo.Context) error {
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		return ErrorResponse(c, http.StatusUnauthorized, "authentication required")
	}
	user, err := model.GetUserByID(claims.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return ErrorResponse(c, http.StatusNotFound, "user not found")
		}
		return err
	}
	return SuccessResponse(c, http.StatusOK, "current user", user.ToResponse())
}
