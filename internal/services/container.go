// Package services provides dependency injection container for application services.
package services

import (
	"context"
	"net/http"

	"github.com/amaumene/rdstream/internal/config"
	"github.com/amaumene/rdstream/internal/database"
	"github.com/amaumene/rdstream/internal/models"
	"github.com/amaumene/rdstream/pkg/logger"
)

// Container holds all application services for dependency injection.
type Container struct {
	Config      *config.Config
	Gateway     GatewayService
	Listing     ListingService
	DB          database.Database
	Maintenance *Maintenance
	Logger      logger.Logger
}

// GatewayService defines the playback operations used by the HTTP layer.
type GatewayService interface {
	ResolveAndStream(ctx context.Context, req StreamRequest, w http.ResponseWriter) (*Outcome, error)
	Stats() models.Stats
}

// ListingService defines the stream listing operation.
type ListingService interface {
	Streams(ctx context.Context, req ListingRequest) ([]models.Stream, error)
}
