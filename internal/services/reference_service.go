package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/joshua-takyi/homex/internal/models"
)

const (
	defaultCatalogCacheSize = 256
	defaultCatalogCacheTTL  = 5 * time.Minute
)

// ReferenceService fronts the reference store with a catalog cache. Entries
// expire after the cache TTL so catalog edits reach new bookings; until then a
// cached entry keeps availability exact through short reference outages.
type ReferenceService struct {
	store   models.ReferenceStore
	catalog *expirable.LRU[string, *models.CatalogService]
	logger  *slog.Logger
}

func NewReferenceService(store models.ReferenceStore, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *ReferenceService {
	if cacheSize <= 0 {
		cacheSize = defaultCatalogCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCatalogCacheTTL
	}
	return &ReferenceService{
		store:   store,
		catalog: expirable.NewLRU[string, *models.CatalogService](cacheSize, nil, cacheTTL),
		logger:  orDefault(logger),
	}
}

func (rs *ReferenceService) CatalogService(ctx context.Context, id string) (*models.CatalogService, error) {
	if svc, ok := rs.catalog.Get(id); ok {
		return svc, nil
	}
	svc, err := rs.store.GetCatalogService(ctx, id)
	if err != nil {
		return nil, err
	}
	rs.catalog.Add(id, svc)
	return svc, nil
}

// Invalidate drops a cached catalog entry, or the whole cache for an empty id.
func (rs *ReferenceService) Invalidate(id string) {
	if id == "" {
		rs.catalog.Purge()
		return
	}
	rs.catalog.Remove(id)
}

func (rs *ReferenceService) ListLocations(ctx context.Context, kind models.LocationKind, parentID *int64) ([]*models.Location, error) {
	return rs.store.ListLocations(ctx, kind, parentID)
}

func (rs *ReferenceService) CreateLocation(ctx context.Context, kind models.LocationKind, loc *models.Location) (*models.Location, error) {
	if err := rs.validateLocation(kind, loc); err != nil {
		return nil, err
	}
	created, err := rs.store.CreateLocation(ctx, kind, loc)
	if err != nil {
		return nil, err
	}
	rs.logger.InfoContext(ctx, "location created", "kind", kind, "id", created.ID)
	return created, nil
}

func (rs *ReferenceService) UpdateLocation(ctx context.Context, kind models.LocationKind, id int64, loc *models.Location) (*models.Location, error) {
	if err := rs.validateLocation(kind, loc); err != nil {
		return nil, err
	}
	return rs.store.UpdateLocation(ctx, kind, id, loc)
}

func (rs *ReferenceService) DeleteLocation(ctx context.Context, kind models.LocationKind, id int64) error {
	if err := rs.store.DeleteLocation(ctx, kind, id); err != nil {
		return err
	}
	rs.logger.InfoContext(ctx, "location deleted", "kind", kind, "id", id)
	return nil
}

func (rs *ReferenceService) validateLocation(kind models.LocationKind, loc *models.Location) error {
	loc.Name = strings.Join(strings.Fields(loc.Name), " ")
	verr := &models.ValidationError{}
	if err := validationFrom(verr, models.ValidateStruct(loc)); err != nil {
		return err
	}
	if kind.NeedsParent() && loc.ParentID == nil {
		verr.Add("parent_id", "is required")
	}
	if !kind.NeedsParent() {
		loc.ParentID = nil
	}
	return verr.OrNil()
}
