package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/rdstream/internal/constants"
	apperrors "github.com/amaumene/rdstream/internal/errors"
)

// stripJSONExtension removes .json extension from a parameter if present
func stripJSONExtension(c *gin.Context, paramName string) {
	value := c.Param(paramName)
	if strings.HasSuffix(value, ".json") {
		for i, param := range c.Params {
			if param.Key == paramName {
				c.Params[i].Value = strings.TrimSuffix(value, ".json")
				break
			}
		}
	}
}

// baseURL is the public origin used in generated links. The configured value
// wins; otherwise it is rebuilt from the request, honouring proxies.
func baseURL(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + c.Request.Host
}

// writeError renders a typed failure unless the response already started.
func writeError(c *gin.Context, err error) {
	if c.Writer.Written() {
		return
	}

	retryable := apperrors.IsRetryable(err)
	if retryable {
		c.Header("Retry-After", fmt.Sprint(int(constants.RetryAfter.Seconds())))
	}
	c.AbortWithStatusJSON(apperrors.HTTPStatus(err), gin.H{
		"error":     apperrors.TypeOf(err),
		"message":   apperrors.MessageOf(err),
		"retryable": retryable,
	})
}
