package models

import (
	"time"

	"github.com/noah-isme/fieldops-api/pkg/geo"
)

// RoutePointType positions a point within a route.
type RoutePointType string

const (
	PointStart       RoutePointType = "start"
	PointWaypoint    RoutePointType = "waypoint"
	PointStop        RoutePointType = "stop"
	PointDestination RoutePointType = "destination"
)

// RoutePriority weighs a stop for time-first and balanced optimization.
type RoutePriority string

const (
	RoutePriorityLow    RoutePriority = "low"
	RoutePriorityNormal RoutePriority = "normal"
	RoutePriorityHigh   RoutePriority = "high"
	RoutePriorityUrgent RoutePriority = "urgent"
)

// Weight maps route priority to its optimization weight.
func (p RoutePriority) Weight() float64 {
	switch p {
	case RoutePriorityUrgent:
		return 4
	case RoutePriorityHigh:
		return 3
	case RoutePriorityNormal:
		return 2
	case RoutePriorityLow:
		return 1
	}
	return 2
}

// OptimizationMethod selects the reordering heuristic.
type OptimizationMethod string

const (
	MethodShortestDistance OptimizationMethod = "shortest_distance"
	MethodFastestTime      OptimizationMethod = "fastest_time"
	MethodBalanced         OptimizationMethod = "balanced"
)

// Valid reports whether the method is a known heuristic.
func (m OptimizationMethod) Valid() bool {
	switch m {
	case MethodShortestDistance, MethodFastestTime, MethodBalanced:
		return true
	}
	return false
}

// RoutePoint is a geographic stop on a route.
type RoutePoint struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Address          string         `json:"address,omitempty"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	Type             RoutePointType `json:"type"`
	Priority         RoutePriority  `json:"priority"`
	StopMinutes      int            `json:"stop_minutes,omitempty"`
	EstimatedArrival *time.Time     `json:"estimated_arrival,omitempty"`
	ActualArrival    *time.Time     `json:"actual_arrival,omitempty"`
}

// DistanceTo returns the great-circle distance in meters to another point.
func (p RoutePoint) DistanceTo(other RoutePoint) float64 {
	return geo.Haversine(p.Latitude, p.Longitude, other.Latitude, other.Longitude)
}

// Route aggregates an ordered point list with cached travel metrics. Metrics
// are recomputed whenever points or settings change.
type Route struct {
	ID                string             `json:"id"`
	Name              string             `json:"name,omitempty"`
	Points            []RoutePoint       `json:"points"`
	TotalDistance     float64            `json:"total_distance_meters"`
	EstimatedDuration float64            `json:"estimated_duration_minutes"`
	Method            OptimizationMethod `json:"method,omitempty"`
	Optimized         bool               `json:"optimized"`
}

// OptimizationResult reports the effect of a route optimization run.
// Savings are clamped to zero; heuristics can occasionally do worse.
type OptimizationResult struct {
	Points            []RoutePoint       `json:"points"`
	OriginalDistance  float64            `json:"original_distance_meters"`
	OptimizedDistance float64            `json:"optimized_distance_meters"`
	TimeSavedMinutes  float64            `json:"time_saved_minutes"`
	FuelSavedLiters   float64            `json:"fuel_saved_liters"`
	Method            OptimizationMethod `json:"method"`
	Confidence        float64            `json:"confidence"`
}
