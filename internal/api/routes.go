package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/speakup/internal/auth"
	"github.com/satriahrh/speakup/internal/websocket"
)

// anonymousLearner is used for websocket connections when auth is disabled
const anonymousLearner = "anonymous"

// Options configures the HTTP surface
type Options struct {
	// AuthDisabled accepts websocket connections without a token
	AuthDisabled bool
	// AccessKey is exchanged for a learner token
	AccessKey string
	// TokenRateLimit is the number of token requests allowed per IP per minute
	TokenRateLimit int
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, issuer *auth.Issuer, opts Options, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "speakup-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	limit := opts.TokenRateLimit
	if limit <= 0 {
		limit = 10
	}
	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, issuer, opts.AccessKey, logger)
	}, echo.WrapMiddleware(httprate.LimitByIP(limit, time.Minute)))

	sessions := v1.Group("/sessions", requireLearner(issuer, opts.AuthDisabled, logger))
	sessions.GET("", func(c echo.Context) error {
		return c.JSON(http.StatusOK, SessionListResponse{Sessions: hub.LearnerSessionIDs(learnerID(c))})
	})
	sessions.GET("/:id", func(c echo.Context) error {
		session, ok := hub.LearnerSession(learnerID(c), c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "session_not_found",
				Message: "No live session with this id",
			})
		}
		return c.JSON(http.StatusOK, session.Snapshot())
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		if opts.AuthDisabled {
			return websocket.HandleWebSocket(hub, c, anonymousLearner, logger)
		}
		return websocketWithAuth(hub, issuer, c, logger)
	})
}

func issueToken(c echo.Context, issuer *auth.Issuer, accessKey string, logger *zap.Logger) error {
	var req TokenRequest

	// Bind and validate request
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.LearnerID == "" || req.AccessKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Learner id and access key are required",
		})
	}

	if accessKey == "" || subtle.ConstantTimeCompare([]byte(req.AccessKey), []byte(accessKey)) != 1 {
		logger.Warn("Learner authentication failed", zap.String("learner_id", req.LearnerID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid access key",
		})
	}

	token, expiresAt, err := issuer.GenerateLearnerToken(req.LearnerID)
	if err != nil {
		logger.Error("Failed to generate learner token",
			zap.String("learner_id", req.LearnerID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Learner authenticated successfully", zap.String("learner_id", req.LearnerID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		LearnerID: req.LearnerID,
	})
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter since browsers cannot set websocket headers
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && token != "" {
		return token
	}
	return c.QueryParam("token")
}

const learnerKey = "learner_id"

// requireLearner validates the bearer token and stores its learner id on the
// context. With auth disabled every request acts as the anonymous learner.
func requireLearner(issuer *auth.Issuer, disabled bool, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if disabled {
				c.Set(learnerKey, anonymousLearner)
				return next(c)
			}

			token := bearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "missing_token",
					Message: "JWT token is required in Authorization header or token query parameter",
				})
			}
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				logger.Warn("Request rejected: invalid token", zap.String("path", c.Path()), zap.Error(err))
				return c.JSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "invalid_token",
					Message: "Invalid or expired JWT token",
				})
			}

			c.Set(learnerKey, claims.LearnerID)
			return next(c)
		}
	}
}

func learnerID(c echo.Context) string {
	id, _ := c.Get(learnerKey).(string)
	return id
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, issuer *auth.Issuer, c echo.Context, logger *zap.Logger) error {
	token := bearerToken(c)
	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header or token query parameter",
		})
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("learner_id", claims.LearnerID))

	return websocket.HandleWebSocket(hub, c, claims.LearnerID, logger)
}
