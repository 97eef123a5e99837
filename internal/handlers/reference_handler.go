package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/models"
	"github.com/joshua-takyi/homex/internal/services"
)

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// locationKind reads the collection name from the route's "kind" key.
func locationKind(c *gin.Context) (models.LocationKind, bool) {
	kind, ok := models.ParseLocationKind(c.GetString("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse("unknown location collection"))
		return "", false
	}
	return kind, true
}

// WithKind tags a route group with the location collection it serves.
func WithKind(kind models.LocationKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("kind", string(kind))
		c.Next()
	}
}

func ListLocationsHandler(r *services.ReferenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := locationKind(c)
		if !ok {
			return
		}
		var parentID *int64
		if raw := c.Query("parent_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError("parent_id", "must be an integer")))
				return
			}
			parentID = &id
		}
		locations, err := r.ListLocations(c.Request.Context(), kind, parentID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(locations, ""))
	}
}

func CreateLocationHandler(r *services.ReferenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := locationKind(c)
		if !ok {
			return
		}
		var loc models.Location
		if !bindJSON(c, &loc) {
			return
		}
		created, err := r.CreateLocation(c.Request.Context(), kind, &loc)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(created, "Created"))
	}
}

func UpdateLocationHandler(r *services.ReferenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := locationKind(c)
		if !ok {
			return
		}
		id, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		var loc models.Location
		if !bindJSON(c, &loc) {
			return
		}
		updated, err := r.UpdateLocation(c.Request.Context(), kind, id, &loc)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(updated, "Updated"))
	}
}

func DeleteLocationHandler(r *services.ReferenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := locationKind(c)
		if !ok {
			return
		}
		id, ok := paramInt64(c, "id")
		if !ok {
			return
		}
		if err := r.DeleteLocation(c.Request.Context(), kind, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Deleted"))
	}
}

func CatalogServiceHandler(r *services.ReferenceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, err := r.CatalogService(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(svc, ""))
	}
}
