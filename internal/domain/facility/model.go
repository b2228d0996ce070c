package facility

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("facility not found")

// HealthcareFacility is reference data for referral routing.
type HealthcareFacility struct {
	ID               uuid.UUID `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	FacilityType     string    `db:"facility_type" json:"facility_type"`
	Address          string    `db:"address" json:"address,omitempty"`
	Phone            string    `db:"phone" json:"phone,omitempty"`
	Latitude         float64   `db:"latitude" json:"latitude"`
	Longitude        float64   `db:"longitude" json:"longitude"`
	Capacity         int       `db:"capacity" json:"capacity"`
	IsAccredited     bool      `db:"is_accredited" json:"is_accredited"`
	AcceptsReferrals bool      `db:"accepts_referrals" json:"accepts_referrals"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	// DistanceKM is set when the listing was ordered from a point.
	DistanceKM *float64 `db:"-" json:"distance_km,omitempty"`
}

// Filter narrows a facility listing.
type Filter struct {
	FacilityType     string
	AcceptsReferrals *bool
	Origin           *Point
}

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

const earthRadiusKM = 6371.0

// HaversineKM is the great-circle distance between a and b.
func HaversineKM(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}
