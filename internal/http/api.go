package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"authgate/internal/domain"
	"authgate/internal/password"
	"authgate/internal/service"
)

const (
	userContextKey  = "authgate.user"
	tokenContextKey = "authgate.token"

	readinessTimeout = 3 * time.Second
)

// Messages returned to clients.
const (
	msgRegistered         = "Registration successful. Please log in."
	msgLoggedIn           = "Logged in successfully."
	msgLoggedOut          = "You have been logged out."
	msgMissingFields      = "Username and password are required."
	msgPasswordTooLong    = "Password is too long."
	msgUsernameTaken      = "That username is already taken. Please choose another."
	msgInvalidCredentials = "Invalid username or password."
	msgLoginRequired      = "login required"
	msgLoginHint          = "Log in by sending a JSON body with username and password to POST /api/login."
	msgInternal           = "internal server error"
)

// Pinger is implemented by dependencies probed by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function such as (*sql.DB).PingContext to a Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

type Options struct {
	Cookie       CookieConfig
	AllowOrigins []string
	// Checks are pinged by /api/health/ready, keyed by dependency name.
	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// Handler wires HTTP routes to the auth services.
type Handler struct {
	auth   service.UserService
	cookie CookieConfig
	opts   Options
	logger logrus.FieldLogger
}

func NewHandler(auth service.UserService, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Cookie.Name == "" {
		opts.Cookie.Name = "authgate_session"
	}
	return &Handler{
		auth:   auth,
		cookie: opts.Cookie,
		opts:   opts,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(h.corsMiddleware())

	router.GET("/", h.index)
	if h.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.POST("/register", h.register)
		api.GET("/login", h.loginHint)
		api.POST("/login", h.login)
		api.GET("/health", h.liveness)
		api.GET("/health/ready", h.readiness)

		private := api.Group("")
		private.Use(h.requireUser())
		private.GET("/dashboard", h.dashboard)
		private.GET("/me", h.me)
		private.POST("/logout", h.logout)
	}
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(h.opts.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = h.opts.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	return cors.New(corsConfig)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func userToResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
	}
}

func (h *Handler) index(c *gin.Context) {
	user, err := h.auth.CurrentUser(c.Request.Context(), h.sessionToken(c))
	if err == nil && user != nil {
		c.Redirect(http.StatusSeeOther, "/api/dashboard")
		return
	}
	c.Redirect(http.StatusSeeOther, "/api/login")
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    userToResponse(user),
		"message": msgRegistered,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
		return
	}

	user, token, err := h.auth.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.setSessionCookie(c, token, int(h.cookie.MaxAge/time.Second))
	c.JSON(http.StatusOK, gin.H{
		"user":    userToResponse(user),
		"message": msgLoggedIn,
	})
}

// loginHint is where anonymous visitors to / are sent.
func (h *Handler) loginHint(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": msgLoginHint})
}

func (h *Handler) dashboard(c *gin.Context) {
	user := currentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"user":    userToResponse(user),
		"message": "Welcome, " + user.Username,
	})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(currentUser(c)))
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(tokenContextKey)); err != nil {
		h.respondError(c, err)
		return
	}
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": msgLoggedOut})
}

func (h *Handler) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type dependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *Handler) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	deps := make(map[string]dependencyStatus, len(h.opts.Checks))
	healthy := true
	for name, check := range h.opts.Checks {
		if err := check.Ping(ctx); err != nil {
			deps[name] = dependencyStatus{Status: "unhealthy", Error: err.Error()}
			healthy = false
			continue
		}
		deps[name] = dependencyStatus{Status: "ok"}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// requireUser rejects anonymous callers and stores the resolved user on the context.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := h.sessionToken(c)
		user, err := h.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgLoginRequired})
			return
		}
		c.Set(userContextKey, user)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// sessionToken reads the token from the session cookie, falling back to a bearer header.
func (h *Handler) sessionToken(c *gin.Context) string {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

func currentUser(c *gin.Context) *domain.User {
	user, _ := c.Get(userContextKey)
	return user.(*domain.User)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, password.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgPasswordTooLong})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgMissingFields})
	case errors.Is(err, domain.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"error": msgUsernameTaken})
	case errors.Is(err, domain.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCredentials})
	default:
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}
