package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/bulkedit"
	"github.com/timmy/stockmeta/internal/export"
	"github.com/timmy/stockmeta/internal/imageprep"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/storage"
)

// zipFailureMessage is the only detail clients get when an archive fails.
const zipFailureMessage = "An error occurred while creating the ZIP file."

// respondError writes err with the matching status code. Key problems ask
// the client to prompt for a new API key.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var te *service.TransportError
	switch {
	case errors.Is(err, service.ErrMissingKey), errors.Is(err, service.ErrInvalidKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "prompt_api_key": true})
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAssetNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNoMetadata), errors.Is(err, export.ErrNothingToExport):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidMode),
		errors.Is(err, service.ErrInvalidField),
		errors.Is(err, service.ErrInvalidSetting),
		errors.Is(err, bulkedit.ErrInvalidRequest),
		errors.Is(err, imageprep.ErrUnsupportedFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &te):
		c.JSON(http.StatusBadGateway, gin.H{"error": te.Message})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
