package models

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

const CatalogTable = "service_catalog"

// ReferenceStore is the location hierarchy and service catalog. Bookings only
// read from it; the location writes serve the admin pass-through routes.
type ReferenceStore interface {
	GetCatalogService(ctx context.Context, id string) (*CatalogService, error)
	ListLocations(ctx context.Context, kind LocationKind, parentID *int64) ([]*Location, error)
	CreateLocation(ctx context.Context, kind LocationKind, loc *Location) (*Location, error)
	UpdateLocation(ctx context.Context, kind LocationKind, id int64, loc *Location) (*Location, error)
	DeleteLocation(ctx context.Context, kind LocationKind, id int64) error
}

func referenceErr(op string, status int64, raw []byte, err error) error {
	if status != 0 {
		return fmt.Errorf("%w: %s: status=%d body=%s err=%v", ErrReferenceUnavailable, op, status, string(raw), err)
	}
	return fmt.Errorf("%w: %s: %v", ErrReferenceUnavailable, op, err)
}

func (su *SupabaseRepo) GetCatalogService(ctx context.Context, id string) (*CatalogService, error) {
	if su.supabaseClient == nil {
		return nil, fmt.Errorf("%w: supabase client is not initialized", ErrReferenceUnavailable)
	}

	raw, count, err := su.supabaseClient.From(CatalogTable).
		Select("id,title,category,price,duration,time_slots", "exact", false).
		Eq("id", id).
		Execute()
	if err != nil {
		return nil, referenceErr("get catalog service", count, raw, err)
	}

	// PostgREST returns an array even for single results
	var rows []CatalogService
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal catalog rows: %v", ErrReferenceUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, notFound("service", id)
	}
	return &rows[0], nil
}

func (su *SupabaseRepo) ListLocations(ctx context.Context, kind LocationKind, parentID *int64) ([]*Location, error) {
	if su.supabaseClient == nil {
		return nil, fmt.Errorf("%w: supabase client is not initialized", ErrReferenceUnavailable)
	}

	query := su.supabaseClient.From(string(kind)).Select("*", "exact", false)
	if parentID != nil {
		query = query.Eq("parent_id", strconv.FormatInt(*parentID, 10))
	}
	raw, count, err := query.Execute()
	if err != nil {
		return nil, referenceErr("list "+string(kind), count, raw, err)
	}

	locations := []*Location{}
	if err := json.Unmarshal(raw, &locations); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", ErrReferenceUnavailable, kind, err)
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].Name < locations[j].Name })
	return locations, nil
}

func (su *SupabaseRepo) CreateLocation(ctx context.Context, kind LocationKind, loc *Location) (*Location, error) {
	if su.supabaseClient == nil {
		return nil, fmt.Errorf("%w: supabase client is not initialized", ErrReferenceUnavailable)
	}

	raw, count, err := su.supabaseClient.From(string(kind)).
		Insert(locationRow(loc), false, "", "representation", "exact").
		Execute()
	if err != nil {
		return nil, referenceErr("create "+string(kind), count, raw, err)
	}
	return firstLocation(raw, kind)
}

func (su *SupabaseRepo) UpdateLocation(ctx context.Context, kind LocationKind, id int64, loc *Location) (*Location, error) {
	if su.supabaseClient == nil {
		return nil, fmt.Errorf("%w: supabase client is not initialized", ErrReferenceUnavailable)
	}

	raw, count, err := su.supabaseClient.From(string(kind)).
		Update(locationRow(loc), "representation", "exact").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return nil, referenceErr("update "+string(kind), count, raw, err)
	}
	if count == 0 {
		return nil, notFound(string(kind), id)
	}
	return firstLocation(raw, kind)
}

func (su *SupabaseRepo) DeleteLocation(ctx context.Context, kind LocationKind, id int64) error {
	if su.supabaseClient == nil {
		return fmt.Errorf("%w: supabase client is not initialized", ErrReferenceUnavailable)
	}

	raw, count, err := su.supabaseClient.From(string(kind)).
		Delete("", "exact").
		Eq("id", strconv.FormatInt(id, 10)).
		Execute()
	if err != nil {
		return referenceErr("delete "+string(kind), count, raw, err)
	}
	if count == 0 {
		return notFound(string(kind), id)
	}
	return nil
}

func locationRow(loc *Location) map[string]interface{} {
	row := map[string]interface{}{
		"name": loc.Name,
	}
	if loc.ParentID != nil {
		row["parent_id"] = *loc.ParentID
	}
	if loc.Pincode != "" {
		row["pincode"] = loc.Pincode
	}
	if loc.Description != "" {
		row["description"] = loc.Description
	}
	return row
}

func firstLocation(raw []byte, kind LocationKind) (*Location, error) {
	var rows []Location
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", ErrReferenceUnavailable, kind, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no %s row returned", ErrReferenceUnavailable, kind)
	}
	return &rows[0], nil
}
