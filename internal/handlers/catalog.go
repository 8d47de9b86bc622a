package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/rdstream/internal/models"
)

// handleCatalog serves the declared catalogs. They only exist so clients
// list the addon; browsing is not offered, so metas are always empty.
func (h *Handler) handleCatalog(c *gin.Context) {
	h.services.Logger.Debugf("[CatalogHandler] catalog request - type: %s, id: %s", c.Param("type"), c.Param("id"))
	c.JSON(http.StatusOK, models.CatalogResponse{Metas: []interface{}{}})
}
