package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/rdstream/internal/constants"
	"github.com/amaumene/rdstream/internal/models"
)

func (h *Handler) handleManifest(c *gin.Context) {
	c.JSON(http.StatusOK, h.createManifest())
}

func (h *Handler) createManifest() models.Manifest {
	return models.Manifest{
		ID:          constants.AddonID,
		Version:     constants.AddonVersion,
		Name:        constants.AddonName + " (" + h.config.StreamMode + ")",
		Description: constants.AddonDescription,
		Types:       []string{"movie", "series"},
		Resources:   []string{"stream"},
		Catalogs:    defaultCatalogs(),
		BehaviorHints: models.BehaviorHints{
			Configurable: false,
		},
		IDPrefixes: []string{"tt"},
	}
}

func defaultCatalogs() []models.Catalog {
	return []models.Catalog{
		{Type: "movie", ID: "sktorrent-movie", Name: "SKTorrent Filmy"},
		{Type: "series", ID: "sktorrent-series", Name: "SKTorrent Seriály"},
	}
}
