package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Vehicle identifies the travel-speed profile for duration estimates.
type Vehicle string

const (
	VehicleCar        Vehicle = "car"
	VehicleTruck      Vehicle = "truck"
	VehicleVan        Vehicle = "van"
	VehicleMotorcycle Vehicle = "motorcycle"
)

// averageSpeedKmh maps vehicle type to typical speed, with a reduced figure
// when highway routing is avoided.
var averageSpeedKmh = map[Vehicle][2]float64{
	VehicleCar:        {50, 35},
	VehicleTruck:      {40, 30},
	VehicleVan:        {45, 32},
	VehicleMotorcycle: {55, 40},
}

// Haversine returns the great-circle distance in meters between two
// latitude/longitude pairs expressed in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// AverageSpeedKmh returns the modeled speed for a vehicle. Unknown vehicles
// fall back to the car profile.
func AverageSpeedKmh(vehicle Vehicle, avoidHighways bool) float64 {
	speeds, ok := averageSpeedKmh[vehicle]
	if !ok {
		speeds = averageSpeedKmh[VehicleCar]
	}
	if avoidHighways {
		return speeds[1]
	}
	return speeds[0]
}

// TravelMinutes estimates driving time in minutes for a distance in meters.
func TravelMinutes(meters float64, vehicle Vehicle, avoidHighways bool) float64 {
	if meters <= 0 {
		return 0
	}
	kmh := AverageSpeedKmh(vehicle, avoidHighways)
	return meters / 1000 / kmh * 60
}

// FuelLiters estimates fuel burned over a distance in meters given an
// efficiency in kilometers per liter.
func FuelLiters(meters, kmPerLiter float64) float64 {
	if meters <= 0 || kmPerLiter <= 0 {
		return 0
	}
	return meters / 1000 / kmPerLiter
}

// ValidCoordinate reports whether a latitude/longitude pair is on the globe.
func ValidCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
