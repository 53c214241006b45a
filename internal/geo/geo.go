// Package geo contains pure geographic computation helpers used by the
// matcher, the fare engine and tracking ingest. No side effects; the only
// failure mode is coordinate validation.
package geo

import (
	"math"

	"courier/internal/domain"
)

const earthRadiusKm = 6371.0

// handlingMinutes is the fixed pickup/handover allowance added to every ETA.
const handlingMinutes = 10.0

// averageSpeedKph maps a vehicle class to its assumed average speed.
var averageSpeedKph = map[domain.VehicleClass]float64{
	domain.VehicleClassBike:  30,
	domain.VehicleClassCar:   40,
	domain.VehicleClassVan:   35,
	domain.VehicleClassTruck: 25,
}

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// ValidatePoint checks coordinate bounds.
func ValidatePoint(p Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return domain.NewValidationError("lat", "latitude must be in [-90, 90]")
	}
	if p.Lng < -180 || p.Lng > 180 {
		return domain.NewValidationError("lng", "longitude must be in [-180, 180]")
	}
	return nil
}

// DistanceKm returns the great-circle distance in kilometres between two
// points, using the haversine formula.
func DistanceKm(a, b Point) (float64, error) {
	if err := ValidatePoint(a); err != nil {
		return 0, err
	}
	if err := ValidatePoint(b); err != nil {
		return 0, err
	}
	return haversineKm(a, b), nil
}

func haversineKm(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	rLat1 := radians(a.Lat)
	rLat2 := radians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// BearingDegrees returns the initial bearing from a to b in degrees,
// normalized to [0, 360).
func BearingDegrees(a, b Point) (float64, error) {
	if err := ValidatePoint(a); err != nil {
		return 0, err
	}
	if err := ValidatePoint(b); err != nil {
		return 0, err
	}

	rLat1 := radians(a.Lat)
	rLat2 := radians(b.Lat)
	dLng := radians(b.Lng - a.Lng)

	y := math.Sin(dLng) * math.Cos(rLat2)
	x := math.Cos(rLat1)*math.Sin(rLat2) - math.Sin(rLat1)*math.Cos(rLat2)*math.Cos(dLng)

	bearing := math.Mod(degrees(math.Atan2(y, x))+360, 360)
	return bearing, nil
}

// Midpoint returns the great-circle midpoint of a and b.
func Midpoint(a, b Point) (Point, error) {
	if err := ValidatePoint(a); err != nil {
		return Point{}, err
	}
	if err := ValidatePoint(b); err != nil {
		return Point{}, err
	}

	rLat1 := radians(a.Lat)
	rLat2 := radians(b.Lat)
	rLng1 := radians(a.Lng)
	dLng := radians(b.Lng - a.Lng)

	bx := math.Cos(rLat2) * math.Cos(dLng)
	by := math.Cos(rLat2) * math.Sin(dLng)

	lat := math.Atan2(
		math.Sin(rLat1)+math.Sin(rLat2),
		math.Sqrt((math.Cos(rLat1)+bx)*(math.Cos(rLat1)+bx)+by*by),
	)
	lng := rLng1 + math.Atan2(by, math.Cos(rLat1)+bx)

	return Point{Lat: degrees(lat), Lng: degrees(lng)}, nil
}

// WithinRadius reports whether b lies within radiusKm of a.
func WithinRadius(a, b Point, radiusKm float64) (bool, error) {
	d, err := DistanceKm(a, b)
	if err != nil {
		return false, err
	}
	return d <= radiusKm, nil
}

// ETAMinutes estimates travel time in minutes for the given distance and
// vehicle class: driving time at the class's average speed plus a fixed
// handling allowance. Unknown classes fall back to car speed.
func ETAMinutes(distanceKm float64, class domain.VehicleClass) float64 {
	speed, ok := averageSpeedKph[class]
	if !ok {
		speed = averageSpeedKph[domain.VehicleClassCar]
	}
	return (distanceKm/speed)*60 + handlingMinutes
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
