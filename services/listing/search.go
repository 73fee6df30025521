package main

import (
	"math"
	"sort"

	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/models"
)

const defaultRadiusKm = 5

// SearchFilter holds the public listing search parameters. Zero values
// mean "not filtered".
type SearchFilter struct {
	Capacity string  `form:"capacity"`
	City     string  `form:"city"`
	MinPrice int     `form:"min_price"`
	MaxPrice int     `form:"max_price"`
	MinRooms int     `form:"min_rooms"`
	MinArea  int     `form:"min_area"`
	Sort     string  `form:"sort"`
	Lat      float64 `form:"lat"`
	Lng      float64 `form:"lng"`
	RadiusKm float64 `form:"radius"`
}

// SearchResult is a listing enriched with the distance from the search
// point when a location filter is active.
type SearchResult struct {
	models.Listing
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// searchListings returns PUBLIC listings matching the filter. Attribute
// filters and sorting run in SQL; the optional radius filter runs on the
// stored coordinates afterwards and re-sorts by distance.
func searchListings(db *gorm.DB, filter SearchFilter) ([]SearchResult, error) {
	query := db.Model(&models.Listing{}).
		Where("listing_status = ?", models.ListingPublic)

	switch filter.Capacity {
	case "1-2":
		query = query.Where("max_tenants BETWEEN 1 AND 2")
	case "3-4":
		query = query.Where("max_tenants BETWEEN 3 AND 4")
	case "5+":
		query = query.Where("max_tenants >= 5")
	}

	if filter.City != "" {
		query = query.Where("city LIKE ?", "%"+filter.City+"%")
	}
	if filter.MinPrice > 0 {
		query = query.Where("monthly_price >= ?", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		query = query.Where("monthly_price <= ?", filter.MaxPrice)
	}
	if filter.MinRooms > 0 {
		query = query.Where("rooms >= ?", filter.MinRooms)
	}
	if filter.MinArea > 0 {
		query = query.Where("area >= ?", filter.MinArea)
	}

	switch filter.Sort {
	case "price-asc":
		query = query.Order("monthly_price ASC")
	case "price-desc":
		query = query.Order("monthly_price DESC")
	case "capacity":
		query = query.Order("max_tenants DESC")
	case "area":
		query = query.Order("area DESC")
	case "rooms":
		query = query.Order("rooms DESC")
	default:
		query = query.Order("created_at DESC")
	}

	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(listings))
	for _, listing := range listings {
		results = append(results, SearchResult{Listing: listing})
	}

	if filter.Lat == 0 && filter.Lng == 0 {
		return results, nil
	}

	radius := filter.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm
	}

	within := make([]SearchResult, 0, len(results))
	for _, result := range results {
		distance := haversineKm(filter.Lat, filter.Lng, result.Latitude, result.Longitude)
		if distance <= radius {
			result.DistanceKm = distance
			within = append(within, result)
		}
	}

	// Nearest first
	sort.Slice(within, func(i, j int) bool {
		return within[i].DistanceKm < within[j].DistanceKm
	})

	return within, nil
}

// haversineKm returns the great-circle distance between two coordinates
// in kilometers.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371

	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
