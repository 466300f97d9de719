package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const EarthRadiusKm = 6371.0

// CandidatePrecision gives cells of roughly 5 km, used for the pickup prefilter.
const CandidatePrecision uint = 5

type Point struct {
	Lat float64
	Lon float64
}

// HaversineKm returns the great-circle distance between a and b.
func HaversineKm(a, b Point) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	dPhi := toRadians(b.Lat - a.Lat)
	dLambda := toRadians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// rounding can push h just outside [0, 1]
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func Encode(p Point, precision uint) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, precision)
}

// Neighbourhood returns the cell containing p plus its eight neighbours.
func Neighbourhood(p Point, precision uint) []string {
	hash := Encode(p, precision)
	return append([]string{hash}, geohash.Neighbors(hash)...)
}
