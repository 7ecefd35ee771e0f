package handlers

import (
	"log/slog"

	"anonhost/internal/apperr"
	"anonhost/internal/config"
	"anonhost/internal/services"
	"anonhost/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Services groups the collaborators the HTTP layer depends on.
type Services struct {
	Identity   *services.IdentityResolver
	Auth       *services.AuthService
	APIKeys    *services.APIKeyService
	Settings   *services.SettingsService
	Profiles   *services.ProfileService
	Media      *services.MediaService
	Upload     *services.UploadService
	Chunks     *services.ChunkedUploadService
	Delivery   *services.DeliveryService
	Shortlinks *services.ShortlinkService
	Stats      *services.StatsService
	Admin      *services.AdminService
	QR         *services.QRService
	Store      *storage.Adapter
}

type Handler struct {
	cfg      config.Config
	logger   *slog.Logger
	svc      Services
	gatherer prometheus.Gatherer
}

func NewHandler(cfg config.Config, logger *slog.Logger, svc Services, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		cfg:      cfg,
		logger:   logger,
		svc:      svc,
		gatherer: gatherer,
	}
}

// respondError writes err as {"error": ...} with its mapped status.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= 500 {
		h.logger.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}
