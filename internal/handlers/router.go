package handlers

import (
	"net/http"
	"time"

	"anonhost/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimiters holds the per-tier limiters. A nil value disables limiting.
type RateLimiters struct {
	Authenticated *services.IPRateLimiter
	Anonymous     *services.IPRateLimiter
}

func (h *Handler) SetupRouter(limiters *RateLimiters) *gin.Engine {
	r := gin.Default()

	store := cookie.NewStore([]byte(h.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("anonhost_session", store))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	// Delivery routes are not rate limited.
	delivery := r.Group("/")
	delivery.Use(cors.New(cors.Config{
		AllowOrigins: []string{h.cfg.BaseURL},
		AllowMethods: []string{http.MethodGet, http.MethodHead},
		MaxAge:       12 * time.Hour,
	}))
	{
		delivery.GET("/uploads/*path", h.ServeObject)
		delivery.GET("/serve/*path", h.ServeObject)
	}

	api := r.Group("/")
	api.Use(h.Identify())
	if limiters != nil && limiters.Authenticated != nil && limiters.Anonymous != nil {
		api.Use(h.RateLimitMiddleware(limiters.Authenticated, limiters.Anonymous))
	}

	api.GET("/s/:id", h.RedirectShortlink)
	api.GET("/s/:id/qr", h.ShortlinkQR)
	api.GET("/stats", h.GetStats)
	api.POST("/upload/storage", h.StorageUpload)

	auth := api.Group("/auth")
	{
		auth.POST("/email", h.RequestCode)
		auth.POST("/verify", h.VerifyCode)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", h.AuthRequired(), h.Me)
	}

	authorized := api.Group("/")
	authorized.Use(h.AuthRequired())
	{
		authorized.POST("/media", h.UploadMedia)
		authorized.GET("/media", h.ListMedia)
		authorized.DELETE("/media/:id", h.DeleteMedia)
		authorized.POST("/upload/chunk", h.UploadChunk)
		authorized.POST("/upload/reassemble", h.ReassembleUpload)

		authorized.POST("/shortener", h.CreateShortlink)
		authorized.GET("/shortener", h.ListShortlinks)
		authorized.GET("/shortener/:id", h.GetShortlink)
		authorized.PUT("/shortener/:id", h.UpdateShortlink)
		authorized.DELETE("/shortener/:id", h.DeleteShortlink)
	}

	sessionOnly := api.Group("/")
	sessionOnly.Use(h.SessionRequired())
	{
		sessionOnly.POST("/keys", h.CreateAPIKey)
		sessionOnly.GET("/keys", h.ListAPIKeys)
		sessionOnly.DELETE("/keys/:id", h.DeleteAPIKey)

		sessionOnly.GET("/settings", h.GetSettings)
		sessionOnly.PUT("/settings", h.UpdateSettings)
		sessionOnly.PUT("/settings/email", h.RequestEmailChange)
		sessionOnly.POST("/settings/email/verify", h.ConfirmEmailChange)

		sessionOnly.GET("/settings/profile", h.GetProfile)
		sessionOnly.PUT("/settings/profile", h.UpdateProfile)
		sessionOnly.POST("/settings/profile/avatar", h.UploadProfileImage(services.ProfileAvatar))
		sessionOnly.POST("/settings/profile/banner", h.UploadProfileImage(services.ProfileBanner))
	}

	admin := api.Group("/admin")
	admin.Use(h.AdminRequired())
	{
		admin.GET("/users", h.AdminListUsers)
		admin.PATCH("/users/:id", h.AdminUpdateUser)
		admin.DELETE("/media/:id", h.AdminDeleteMedia)
		admin.POST("/email", h.AdminSendEmail)
	}

	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"storage": h.svc.Store.IsReachable(c.Request.Context()),
	})
}
