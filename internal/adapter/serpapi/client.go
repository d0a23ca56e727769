package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
	"github.com/couchcryptid/vehicle-incident-etl/internal/observability"
)

const defaultBaseURL = "https://serpapi.com"

// Client implements domain.HospitalFinder using the SerpAPI Google Maps engine.
type Client struct {
	apiKey     string
	zoom       int
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a SerpAPI hospital search client.
func NewClient(apiKey string, zoom int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		zoom:   zoom,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// NearestHospitals searches for hospitals around the coordinate and returns up
// to domain.MaxHospitalMatches results in provider order. An empty result set
// is returned as (nil, nil).
func (c *Client) NearestHospitals(ctx context.Context, lat, lon float64) ([]domain.HospitalMatch, error) {
	params := url.Values{
		"engine":  {"google_maps"},
		"type":    {"search"},
		"q":       {"hospitals"},
		"ll":      {fmt.Sprintf("@%.6f,%.6f,%dz", lat, lon, c.zoom)},
		"api_key": {c.apiKey},
	}

	start := time.Now()
	matches, err := c.doRequest(ctx, c.baseURL+"/search?"+params.Encode())
	c.metrics.HospitalAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.HospitalLookups.WithLabelValues("error").Inc()
		return nil, err
	case len(matches) == 0:
		c.metrics.HospitalLookups.WithLabelValues("empty").Inc()
		c.logger.Debug("no hospitals found", "lat", lat, "lon", lon)
		return nil, nil
	default:
		c.metrics.HospitalLookups.WithLabelValues("success").Inc()
		return matches, nil
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.HospitalMatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: hospital search request: %w", domain.ErrEnrichmentUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: serpapi status %d: %s", domain.ErrEnrichmentUnavailable, resp.StatusCode, body)
	}

	var searchResp response
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrEnrichmentUnavailable, err)
	}
	if searchResp.Error != "" {
		return nil, fmt.Errorf("%w: serpapi: %s", domain.ErrEnrichmentUnavailable, searchResp.Error)
	}

	var matches []domain.HospitalMatch
	for _, r := range searchResp.LocalResults {
		if !strings.Contains(strings.ToLower(r.Type), "hospital") {
			continue
		}
		matches = append(matches, r.toMatch())
		if len(matches) == domain.MaxHospitalMatches {
			break
		}
	}
	return matches, nil
}

// SerpAPI response types.

type response struct {
	LocalResults []localResult `json:"local_results"`
	Error        string        `json:"error,omitempty"`
}

type localResult struct {
	Title          string          `json:"title"`
	Address        string          `json:"address"`
	Phone          string          `json:"phone"`
	Type           string          `json:"type"`
	GPSCoordinates *gpsCoordinates `json:"gps_coordinates,omitempty"`
}

type gpsCoordinates struct {
	Latitude  json.Number `json:"latitude"`
	Longitude json.Number `json:"longitude"`
}

func (r localResult) toMatch() domain.HospitalMatch {
	m := domain.HospitalMatch{
		Name:    r.Title,
		Address: r.Address,
		Phone:   r.Phone,
	}
	if r.GPSCoordinates != nil {
		m.Latitude = parseCoord(r.GPSCoordinates.Latitude)
		m.Longitude = parseCoord(r.GPSCoordinates.Longitude)
	}
	return m
}

func parseCoord(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil
	}
	return &f
}
