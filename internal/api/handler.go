// Package api serves the read side: visible incident records and an ad-hoc
// nearest-hospital lookup.
package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

const errMissingCoordinates = "Latitude and longitude parameters are required"

// RecordReader lists visible records, newest first.
type RecordReader interface {
	ListVisible(ctx context.Context, partitions ...domain.Partition) ([]domain.EnrichedRecord, error)
}

type Handler struct {
	records RecordReader
	finder  domain.HospitalFinder
	logger  *slog.Logger
}

// NewHandler creates the read API. finder may be nil when hospital search is disabled.
func NewHandler(records RecordReader, finder domain.HospitalFinder, logger *slog.Logger) *Handler {
	return &Handler{
		records: records,
		finder:  finder,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.listRecords())
	r.GET("/accidents", h.listRecords(domain.PartitionAccidents))
	r.GET("/emergencies", h.listRecords(domain.PartitionEmergencies))
	r.GET("/api/nearest_hospitals", h.nearestHospitals)
	r.GET("/health", h.health)
}

// listRecords serves visible records from the given partitions, or all of
// them. Store failures degrade to an empty list.
func (h *Handler) listRecords(partitions ...domain.Partition) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.records.ListVisible(c.Request.Context(), partitions...)
		if err != nil {
			h.logger.Error("list records failed", "error", err, "path", c.FullPath())
			records = []domain.EnrichedRecord{}
		}
		if records == nil {
			records = []domain.EnrichedRecord{}
		}
		c.JSON(http.StatusOK, records)
	}
}

func (h *Handler) nearestHospitals(c *gin.Context) {
	lat, latOK := parseCoordinate(c.Query("latitude"))
	lon, lonOK := parseCoordinate(c.Query("longitude"))
	if !latOK || !lonOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingCoordinates})
		return
	}

	hospitals := domain.LookupHospitals(c.Request.Context(), h.finder, lat, lon, h.logger)
	c.JSON(http.StatusOK, hospitals)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseCoordinate(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
