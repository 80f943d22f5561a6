package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"salesreport-service/internal/service"
	"salesreport-service/pkg/logger"
	"salesreport-service/prometheus"
)

// Login verifies credentials and issues a bearer token carrying the
// user's id and role.
func Login(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	user, err := directory.Login(req.Email, req.Password)
	if err != nil {
		log.Warn("Login failed", zap.String("email", req.Email))
		prometheus.AuthErrorCounter.WithLabelValues("invalid_credentials").Inc()
		return serviceError(c, err)
	}

	token, err := jwtUtil.GenerateToken(user.Email, user.ID, user.Role)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.AuthErrorCounter.WithLabelValues("token_generation_failed").Inc()
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.LoginCounter.Inc()
	log.Info("User logged in",
		zap.Uint("user_id", user.ID),
		zap.String("role", user.Role))
	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user":  user,
	})
}

// Register creates a manager or user account. Admin only; the service
// enforces the role and manager linkage rules.
func Register(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	var req service.CreateUserInput
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	user, err := directory.CreateUser(a, req)
	if err != nil {
		return serviceError(c, err)
	}

	prometheus.RegistrationCounter.Inc()
	log.Info("User registered",
		zap.Uint("user_id", user.ID),
		zap.String("role", user.Role))
	return c.JSON(http.StatusCreated, user)
}

// Me returns the actor's own profile.
func Me(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	user, err := directory.GetProfile(a)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateMe lets the actor edit their own name, email or password.
func UpdateMe(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	var req service.EditSelfInput
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse profile update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	user, err := directory.EditSelf(a, req)
	if err != nil {
		return serviceError(c, err)
	}
	log.Info("Profile updated", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, user)
}

// ListUsers returns the accounts visible to the actor.
func ListUsers(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}
	users, err := directory.ListUsers(a)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

// UpdateUser applies admin-only role, manager and profile changes.
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	a, ok := actor(c)
	if !ok {
		return missingIdentity(c)
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	var req service.UpdateUserInput
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user update", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	user, err := directory.UpdateUser(a, uint(id), req)
	if err != nil {
		return serviceError(c, err)
	}
	log.Info("User updated",
		zap.Uint("user_id", user.ID),
		zap.String("role", user.Role))
	return c.JSON(http.StatusOK, user)
}
