package maps

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("43.6532,-79.3832")
	require.NoError(t, err)
	assert.InDelta(t, 43.6532, c.Lat, 1e-9)
	assert.InDelta(t, -79.3832, c.Lon, 1e-9)

	c, err = ParseCoordinate(" 43.6532 , -79.3832 ")
	require.NoError(t, err)
	assert.InDelta(t, 43.6532, c.Lat, 1e-9)

	for _, bad := range []string{"", "43.65", "43.65,-79.38,1", "a,b", "95,0", "0,181"} {
		_, err := ParseCoordinate(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func newTestRouter(baseURL string) *Router {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	return NewRouter(l, config.MapsConfig{
		OSRMBaseURL:       baseURL,
		RequestTimeoutSec: 2,
	})
}

func TestRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/route/v1/driving/")
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 5120.3,
				"duration": 421.7,
				"geometry": {"coordinates": [[-79.3832, 43.6532], [-79.3900, 43.6600]]}
			}]
		}`))
	}))
	defer srv.Close()

	r := newTestRouter(srv.URL)
	origin := Coordinate{Lat: 43.6532, Lon: -79.3832}
	dest := Coordinate{Lat: 43.6600, Lon: -79.3900}

	route, err := r.Route(context.Background(), origin, dest)
	require.NoError(t, err)
	assert.InDelta(t, 5120.3, route.DistanceM, 1e-6)
	assert.InDelta(t, 421.7, route.DurationSec, 1e-6)
	require.Len(t, route.Geometry, 2)
	// GeoJSON is lon,lat; the route is lat,lon.
	assert.InDelta(t, 43.6532, route.Geometry[0].Lat, 1e-9)
	assert.InDelta(t, -79.3832, route.Geometry[0].Lon, 1e-9)
}

func TestRouteNoRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": "NoRoute", "routes": [], "message": "Impossible route"}`))
	}))
	defer srv.Close()

	r := newTestRouter(srv.URL)
	_, err := r.Route(context.Background(), Coordinate{}, Coordinate{Lat: 1, Lon: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Impossible route")
}

func TestRouteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestRouter(srv.URL)
	_, err := r.Route(context.Background(), Coordinate{}, Coordinate{Lat: 1, Lon: 1})
	assert.Error(t, err)
}

func TestRouteServiceDown(t *testing.T) {
	r := newTestRouter("http://127.0.0.1:1")
	_, err := r.Route(context.Background(), Coordinate{}, Coordinate{Lat: 1, Lon: 1})
	assert.Error(t, err)
}
