package container

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/snowflake"
	"github.com/joshua-takyi/homex/internal/config"
	"github.com/joshua-takyi/homex/internal/events"
	"github.com/joshua-takyi/homex/internal/middleware"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/services"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *slog.Logger
	Tokens      middleware.TokenValidator
	RateLimiter *middleware.RateLimiter
	Publisher   events.Publisher

	SlotService      *services.SlotService
	BookingService   *services.BookingService
	TrackerService   *services.TrackerService
	LedgerService    *services.LedgerService
	ReferenceService *services.ReferenceService
}

// Backends are the adapters chosen at startup. Uploader may be nil when no
// attachment storage is configured.
type Backends struct {
	Store     models.Store
	Reference models.ReferenceStore
	Publisher events.Publisher
	Uploader  services.AttachmentUploader
	Tokens    middleware.TokenValidator
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *slog.Logger, b Backends) (*Container, error) {
	if b.Publisher == nil {
		b.Publisher = events.NoopPublisher{Logger: logger}
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("create id node: %w", err)
	}
	reference := services.NewReferenceService(b.Reference, cfg.CatalogCacheSize, cfg.CatalogCacheTTL, logger)

	ledger := services.NewLedgerService(b.Store, cfg.CommissionRate, b.Publisher, logger)
	tracker := services.NewTrackerService(b.Store, ledger, b.Uploader, b.Publisher, logger)

	return &Container{
		Config:           cfg,
		Logger:           logger,
		Tokens:           b.Tokens,
		RateLimiter:      middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
		Publisher:        b.Publisher,
		SlotService:      services.NewSlotService(b.Store, reference, node, b.Publisher, logger),
		BookingService:   services.NewBookingService(b.Store, tracker, b.Publisher, logger),
		TrackerService:   tracker,
		LedgerService:    ledger,
		ReferenceService: reference,
	}, nil
}
