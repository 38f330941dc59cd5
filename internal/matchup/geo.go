package matchup

import "math"

// Mean Earth radius in meters (IUGG).
const earthRadius = 6371008.8

// Distance returns the great-circle separation of two points in
// meters using the haversine formula. Working on angular deltas keeps
// it correct across the antimeridian and at the poles.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	return 2 * earthRadius * math.Asin(math.Sqrt(a))
}
