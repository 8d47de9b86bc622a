// Package handlers implements HTTP request handlers for the Stremio addon API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amaumene/rdstream/internal/config"
	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/middleware"
	"github.com/amaumene/rdstream/internal/services"
)

// Handler handles HTTP requests for the Stremio addon.
type Handler struct {
	services *services.Container
	config   *config.Config
}

// New creates a new Handler with the provided services and configuration.
func New(services *services.Container, config *config.Config) *Handler {
	return &Handler{
		services: services,
		config:   config,
	}
}

// RegisterRoutes registers all HTTP routes for the Stremio addon.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Home and operational routes
	r.GET("/", h.handleHome)
	r.GET("/health", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Addon JSON routes; handle both with and without .json in the handler
	addon := r.Group("/", middleware.Gzip())
	addon.GET("/manifest.json", h.handleManifest)
	addon.GET("/catalog/:type/:id", h.handleCatalogWrapper)
	addon.GET("/stream/:type/:id", h.handleStreamWrapper)
	addon.GET("/stats", h.handleStats)

	// Playback routes stream media and are never compressed
	r.GET("/process/:infoHash", h.handleProcess)
	r.HEAD("/process/:infoHash", h.handleProcess)
}

func (h *Handler) handleHome(c *gin.Context) {
	auth := "open access"
	if h.config.AddonAPIKey != "" {
		auth = "API key required (?api_key=...)"
	}
	c.String(http.StatusOK, "%s %s\nMode: %s\nAccess: %s\nInstall: %s/manifest.json\n",
		constants.AddonName, constants.AddonVersion, h.config.StreamMode, auth, baseURL(c, h.config.BaseURL))
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Gateway.Stats())
}

// Wrapper functions to handle .json extension
func (h *Handler) handleCatalogWrapper(c *gin.Context) {
	stripJSONExtension(c, "id")
	h.handleCatalog(c)
}

func (h *Handler) handleStreamWrapper(c *gin.Context) {
	stripJSONExtension(c, "id")
	h.handleStream(c)
}
