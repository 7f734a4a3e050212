package service

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/geo"
)

// RouteConfig supplies the travel model defaults.
type RouteConfig struct {
	DefaultVehicle     geo.Vehicle
	AvoidHighways      bool
	FuelKmPerLiter     float64
	DefaultStopMinutes int
}

// RouteService reorders route waypoints with one of three heuristics and
// reports distance, time and fuel deltas versus the original ordering. It is
// stateless; callers own the routes they pass in.
type RouteService struct {
	cfg     RouteConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewRouteService constructs the service.
func NewRouteService(cfg RouteConfig, metrics *MetricsService, logger *zap.Logger) *RouteService {
	if cfg.DefaultVehicle == "" {
		cfg.DefaultVehicle = geo.VehicleVan
	}
	if cfg.FuelKmPerLiter <= 0 {
		cfg.FuelKmPerLiter = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteService{cfg: cfg, metrics: metrics, logger: logger}
}

// OptimizeRequest describes one optimization run.
type OptimizeRequest struct {
	Points        []models.RoutePoint
	Method        models.OptimizationMethod
	Vehicle       geo.Vehicle
	AvoidHighways *bool
}

// Optimize reorders intermediate waypoints. The start point stays first and
// the destination stays last; fewer than three points leaves nothing to
// optimize. Savings are clamped to zero since heuristics can occasionally
// produce a longer route.
func (s *RouteService) Optimize(req OptimizeRequest) (*models.OptimizationResult, error) {
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown optimization method %q", req.Method))
	}
	if len(req.Points) < 3 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "route optimization requires at least 3 points")
	}
	start, destination, waypoints, err := splitRoute(req.Points)
	if err != nil {
		return nil, err
	}

	vehicle := req.Vehicle
	if vehicle == "" {
		vehicle = s.cfg.DefaultVehicle
	}
	avoidHighways := s.cfg.AvoidHighways
	if req.AvoidHighways != nil {
		avoidHighways = *req.AvoidHighways
	}

	var ordered []models.RoutePoint
	switch req.Method {
	case models.MethodShortestDistance:
		ordered = nearestNeighbor(*start, waypoints)
	case models.MethodFastestTime:
		ordered = priorityFirst(waypoints)
	case models.MethodBalanced:
		ordered = balanced(*start, waypoints)
	}

	result := make([]models.RoutePoint, 0, len(req.Points))
	result = append(result, *start)
	result = append(result, ordered...)
	result = append(result, *destination)

	originalDistance := totalDistance(req.Points)
	optimizedDistance := totalDistance(result)

	timeSaved := geo.TravelMinutes(originalDistance, vehicle, avoidHighways) -
		geo.TravelMinutes(optimizedDistance, vehicle, avoidHighways)
	if timeSaved < 0 {
		timeSaved = 0
	}
	fuelSaved := geo.FuelLiters(originalDistance-optimizedDistance, s.cfg.FuelKmPerLiter)
	if fuelSaved < 0 {
		fuelSaved = 0
	}

	s.metrics.RecordRouteOptimization(string(req.Method))
	return &models.OptimizationResult{
		Points:            result,
		OriginalDistance:  originalDistance,
		OptimizedDistance: optimizedDistance,
		TimeSavedMinutes:  timeSaved,
		FuelSavedLiters:   fuelSaved,
		Method:            req.Method,
		Confidence:        confidence(req.Method, len(waypoints)),
	}, nil
}

// BuildRoute assembles a Route aggregate with freshly computed metrics.
func (s *RouteService) BuildRoute(id, name string, points []models.RoutePoint, method models.OptimizationMethod, optimized bool) (*models.Route, error) {
	if len(points) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a route needs at least 2 points")
	}
	for _, p := range points {
		if p.Name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "every route point needs a name")
		}
		if !geo.ValidCoordinate(p.Latitude, p.Longitude) {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("point %q has coordinates off the globe", p.Name))
		}
	}
	route := &models.Route{
		ID:        id,
		Name:      name,
		Points:    points,
		Method:    method,
		Optimized: optimized,
	}
	s.RecomputeMetrics(route)
	return route, nil
}

// RecomputeMetrics walks consecutive pairs, summing leg distances and leg
// travel time plus per-point stop durations. Called whenever points or
// settings change; the route caches the result.
func (s *RouteService) RecomputeMetrics(route *models.Route) {
	route.TotalDistance = totalDistance(route.Points)
	duration := geo.TravelMinutes(route.TotalDistance, s.cfg.DefaultVehicle, s.cfg.AvoidHighways)
	for _, p := range route.Points {
		minutes := p.StopMinutes
		if minutes <= 0 && p.Type != models.PointStart && p.Type != models.PointDestination {
			minutes = s.cfg.DefaultStopMinutes
		}
		duration += float64(minutes)
	}
	route.EstimatedDuration = duration
}

func splitRoute(points []models.RoutePoint) (*models.RoutePoint, *models.RoutePoint, []models.RoutePoint, error) {
	var start, destination *models.RoutePoint
	var waypoints []models.RoutePoint
	for i := range points {
		p := points[i]
		if !geo.ValidCoordinate(p.Latitude, p.Longitude) {
			return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("point %q has coordinates off the globe", p.Name))
		}
		switch p.Type {
		case models.PointStart:
			if start != nil {
				return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "route has more than one start point")
			}
			start = &p
		case models.PointDestination:
			if destination != nil {
				return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "route has more than one destination point")
			}
			destination = &p
		default:
			waypoints = append(waypoints, p)
		}
	}
	if start == nil || destination == nil {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "route needs exactly one start and one destination")
	}
	if len(waypoints) == 0 {
		return nil, nil, nil, appErrors.Clone(appErrors.ErrValidation, "route has no intermediate stops to optimize")
	}
	return start, destination, waypoints, nil
}

// nearestNeighbor repeatedly appends the closest remaining waypoint.
func nearestNeighbor(start models.RoutePoint, waypoints []models.RoutePoint) []models.RoutePoint {
	remaining := append([]models.RoutePoint(nil), waypoints...)
	ordered := make([]models.RoutePoint, 0, len(remaining))
	current := start
	for len(remaining) > 0 {
		best := 0
		bestDist := current.DistanceTo(remaining[0])
		for i := 1; i < len(remaining); i++ {
			if d := current.DistanceTo(remaining[i]); d < bestDist {
				best = i
				bestDist = d
			}
		}
		current = remaining[best]
		ordered = append(ordered, current)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// priorityFirst sorts by priority weight, with estimated arrival as the
// tiebreak when both points carry one.
func priorityFirst(waypoints []models.RoutePoint) []models.RoutePoint {
	ordered := append([]models.RoutePoint(nil), waypoints...)
	sort.SliceStable(ordered, func(i, j int) bool {
		wi, wj := ordered[i].Priority.Weight(), ordered[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		if ordered[i].EstimatedArrival != nil && ordered[j].EstimatedArrival != nil {
			return ordered[i].EstimatedArrival.Before(*ordered[j].EstimatedArrival)
		}
		return false
	})
	return ordered
}

// balanced scores each waypoint as priority weight over distance from start
// (floored at 0.1 km) and sorts descending: a close, urgent stop wins.
func balanced(start models.RoutePoint, waypoints []models.RoutePoint) []models.RoutePoint {
	ordered := append([]models.RoutePoint(nil), waypoints...)
	score := func(p models.RoutePoint) float64 {
		km := start.DistanceTo(p) / 1000
		if km < 0.1 {
			km = 0.1
		}
		return p.Priority.Weight() / km
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return score(ordered[i]) > score(ordered[j])
	})
	return ordered
}

func totalDistance(points []models.RoutePoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += points[i-1].DistanceTo(points[i])
	}
	return total
}

// confidence is an illustrative heuristic score, not a statistical figure.
func confidence(method models.OptimizationMethod, waypoints int) float64 {
	base := 0.7
	switch method {
	case models.MethodShortestDistance:
		base = 0.85
	case models.MethodBalanced:
		base = 0.75
	case models.MethodFastestTime:
		base = 0.65
	}
	penalty := float64(waypoints) * 0.01
	if penalty > 0.2 {
		penalty = 0.2
	}
	return base - penalty
}
