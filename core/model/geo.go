package model

import "math"

const earthRadiusKM = 6371

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point carries no coordinate.
func (p GeoPoint) IsZero() bool { return p.Lat == 0 && p.Lon == 0 }

// DistanceKM returns the haversine great-circle distance to q in kilometers.
func (p GeoPoint) DistanceKM(q GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lon1 := p.Lon * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	lon2 := q.Lon * math.Pi / 180

	dlat := lat2 - lat1
	dlon := lon2 - lon1

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}
