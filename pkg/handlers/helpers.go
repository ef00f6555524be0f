package handlers

import (
	"net/http"

	"vendite-chat-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestID returns the identifier assigned by the logging middleware.
// Handlers invoked outside the middleware chain get a fresh one.
func requestID(c *gin.Context) string {
	if id := c.GetString(services.ContextRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

// productDisplayNames maps product codes to the display names recorded in
// the historical table. Codes without a recorded name are left out.
func productDisplayNames(history *services.HistoryService, products []string) map[string]string {
	names := make(map[string]string, len(products))
	for _, product := range products {
		if name := history.ProductName(product); name != "" {
			names[product] = name
		}
	}
	return names
}

// respondUpstreamError answers with a generic message when an external
// dependency failed. Upstream details never reach the caller.
func respondUpstreamError(c *gin.Context) {
	c.JSON(http.StatusBadGateway, gin.H{
		"success": false,
		"error":   "Servizio temporaneamente non disponibile. Riprova tra qualche istante.",
	})
}
