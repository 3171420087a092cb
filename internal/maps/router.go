// Package maps resolves driving routes through an OSRM-compatible
// service. Tile rendering and the actual routing graph live elsewhere;
// this is only the HTTP client and coordinate plumbing.
package maps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseCoordinate reads a "lat,lon" string.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q, want \"lat,lon\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// Route is a resolved driving route.
type Route struct {
	Origin      Coordinate   `json:"origin"`
	Destination Coordinate   `json:"destination"`
	DistanceM   float64      `json:"distance_m"`
	DurationSec float64      `json:"duration_sec"`
	Geometry    []Coordinate `json:"geometry"`
}

// Router is the OSRM HTTP client.
type Router struct {
	logger  *logger.Logger
	baseURL string
	client  *http.Client
}

func NewRouter(l *logger.Logger, cfg config.MapsConfig) *Router {
	return &Router{
		logger:  l.WithTag("maps"),
		baseURL: strings.TrimRight(cfg.OSRMBaseURL, "/"),
		client: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		},
	}
}

// osrmResponse is the subset of OSRM's route response we use.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
	Message string `json:"message"`
}

// Route resolves the driving route between two points.
func (r *Router) Route(ctx context.Context, origin, destination Coordinate) (*Route, error) {
	// OSRM takes lon,lat pairs.
	endpoint := fmt.Sprintf("%s/route/v1/driving/%s;%s",
		r.baseURL, osrmPoint(origin), osrmPoint(destination))

	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build route request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read route response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing service returned %d", resp.StatusCode)
	}

	var parsed osrmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode route response: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		if parsed.Message != "" {
			return nil, fmt.Errorf("no route: %s", parsed.Message)
		}
		return nil, fmt.Errorf("no route found")
	}

	best := parsed.Routes[0]
	route := &Route{
		Origin:      origin,
		Destination: destination,
		DistanceM:   best.Distance,
		DurationSec: best.Duration,
		Geometry:    make([]Coordinate, 0, len(best.Geometry.Coordinates)),
	}
	for _, pt := range best.Geometry.Coordinates {
		if len(pt) < 2 {
			continue
		}
		route.Geometry = append(route.Geometry, Coordinate{Lat: pt[1], Lon: pt[0]})
	}

	r.logger.Debugf("Route resolved: %.0fm, %.0fs, %d points",
		route.DistanceM, route.DurationSec, len(route.Geometry))
	return route, nil
}

func osrmPoint(c Coordinate) string {
	return fmt.Sprintf("%f,%f", c.Lon, c.Lat)
}
