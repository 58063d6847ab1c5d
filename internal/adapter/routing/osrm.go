package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	wrap "github.com/velodrop/courier-dispatch-system/pkg/logger/wrapper"
)

// maxWaypointsPerRoute caps the polyline sampling so penalty computation
// stays linear in alternatives, not in raw geometry points.
const maxWaypointsPerRoute = 50

// OSRMClient talks to an OSRM-compatible routing server.
type OSRMClient struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *OSRMClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OSRMClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		DistanceM float64 `json:"distance"`
		DurationS float64 `json:"duration"`
		Geometry  struct {
			Coordinates [][]float64 `json:"coordinates"` // [lng, lat]
		} `json:"geometry"`
	} `json:"routes"`
}

// Alternatives requests the base route plus alternatives between two points.
func (c *OSRMClient) Alternatives(ctx context.Context, origin, destination models.Location) ([]models.RouteAlternative, error) {
	const op = "OSRMClient.Alternatives"

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?alternatives=true&overview=full&geometries=geojson",
		c.baseURL,
		origin.Longitude, origin.Latitude,
		destination.Longitude, destination.Latitude,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: failed to build request: %w", op, err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: failed to make request to routing server: %w", op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d", op, resp.StatusCode))
	}

	var payload osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: failed to decode routing response: %w", op, err))
	}

	if payload.Code != "Ok" {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: routing server returned code %q", op, payload.Code))
	}

	alternatives := make([]models.RouteAlternative, 0, len(payload.Routes))
	for _, route := range payload.Routes {
		alternatives = append(alternatives, models.RouteAlternative{
			DistanceKm:  route.DistanceM / 1000,
			DurationMin: route.DurationS / 60,
			Waypoints:   sampleWaypoints(route.Geometry.Coordinates, maxWaypointsPerRoute),
		})
	}

	return alternatives, nil
}

// sampleWaypoints converts GeoJSON [lng, lat] pairs to locations, keeping at
// most max points evenly spread over the polyline, endpoints included.
func sampleWaypoints(coords [][]float64, max int) []models.Location {
	if len(coords) == 0 {
		return nil
	}

	stride := 1
	if len(coords) > max {
		stride = (len(coords) + max - 1) / max
	}

	waypoints := make([]models.Location, 0, max+1)
	for i := 0; i < len(coords); i += stride {
		if len(coords[i]) < 2 {
			continue
		}
		waypoints = append(waypoints, models.Location{
			Latitude:  coords[i][1],
			Longitude: coords[i][0],
		})
	}

	last := coords[len(coords)-1]
	if len(last) >= 2 {
		end := models.Location{Latitude: last[1], Longitude: last[0]}
		if len(waypoints) == 0 || waypoints[len(waypoints)-1] != end {
			waypoints = append(waypoints, end)
		}
	}

	return waypoints
}
