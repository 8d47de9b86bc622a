package handlers

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/internal/services"
)

var contentIDRegex = regexp.MustCompile(`^tt\d+(:\d+:\d+)?$`)

func (h *Handler) handleStream(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), constants.ListingTimeout)
	defer cancel()

	contentType := c.Param("type")
	id := c.Param("id")

	if !contentIDRegex.MatchString(id) || (contentType != "movie" && contentType != "series") {
		h.services.Logger.Debugf("[StreamHandler] ignoring unsupported id %s/%s", contentType, id)
		c.JSON(http.StatusOK, models.StreamResponse{Streams: []models.Stream{}})
		return
	}

	apiKey := c.Query("api_key")
	if apiKey == "" {
		apiKey = c.GetHeader("X-API-Key")
	}

	streams, err := h.services.Listing.Streams(ctx, services.ListingRequest{
		Type:    contentType,
		ID:      id,
		APIKey:  apiKey,
		BaseURL: baseURL(c, h.config.BaseURL),
	})
	if err != nil {
		h.services.Logger.Errorf("[StreamHandler] listing failed for %s: %v", id, err)
		streams = []models.Stream{}
	}

	c.JSON(http.StatusOK, models.StreamResponse{Streams: streams})
}
