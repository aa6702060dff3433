package geo

import (
	"math"

	"dispatchcore/internal/model"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// DistanceMatrixKm builds a full pairwise haversine matrix. The diagonal is
// zero and the matrix is symmetric.
func DistanceMatrixKm(points []model.GeoPoint) [][]float64 {
	n := len(points)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineKm(points[i], points[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// Centroid returns the mean of all pickup and delivery coordinates of the
// given orders.
func Centroid(orders []model.Order) model.GeoPoint {
	if len(orders) == 0 {
		return model.GeoPoint{}
	}
	var lat, lng float64
	for _, o := range orders {
		lat += o.Pickup.Lat + o.Delivery.Lat
		lng += o.Pickup.Lng + o.Delivery.Lng
	}
	n := float64(2 * len(orders))
	return model.GeoPoint{Lat: lat / n, Lng: lng / n}
}
