package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/amaumene/rdstream/internal/errors"
	"github.com/amaumene/rdstream/internal/services"
)

// handleProcess resolves an info-hash through the provider and either relays
// the file or redirects to it.
func (h *Handler) handleProcess(c *gin.Context) {
	req := services.StreamRequest{
		ID:        c.Param("infoHash"),
		ClientKey: c.ClientIP(),
		Range:     c.GetHeader("Range"),
		Method:    c.Request.Method,
	}

	out, err := h.services.Gateway.ResolveAndStream(c.Request.Context(), req, c.Writer)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeRelayClientAborted) {
			c.Abort()
			return
		}
		h.services.Logger.Warnf("[ProcessHandler] %s %s failed: %v", req.Method, req.ID, err)
		writeError(c, err)
		return
	}

	if out != nil && out.Redirect != "" {
		c.Redirect(http.StatusFound, out.Redirect)
	}
}
