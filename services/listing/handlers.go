package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/middleware"
	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

const searchCacheTTL = 60 * time.Second

// CreateListingRequest represents the create listing request
type CreateListingRequest struct {
	Title          string               `json:"title" binding:"required"`
	Description    string               `json:"description" binding:"required"`
	MaxTenants     int                  `json:"max_tenants" binding:"required,min=1"`
	MonthlyPrice   int                  `json:"monthly_price" binding:"required,min=1"`
	Area           int                  `json:"area" binding:"min=0"`
	Rooms          int                  `json:"rooms" binding:"min=0"`
	Street         string               `json:"street"`
	Zip            string               `json:"zip"`
	City           string               `json:"city"`
	Country        string               `json:"country"`
	Longitude      float64              `json:"longitude"`
	Latitude       float64              `json:"latitude"`
	ListingStatus  models.ListingStatus `json:"listing_status" binding:"omitempty,oneof=PUBLIC PRIVATE HIDDEN"`
	InitialTenants []TenantInput        `json:"initial_tenants" binding:"dive"`
}

// handleCreateListing handles listing creation with initial flatmates
func handleCreateListing(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		var req CreateListingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		listing := models.Listing{
			Title:         req.Title,
			Description:   req.Description,
			MaxTenants:    req.MaxTenants,
			MonthlyPrice:  req.MonthlyPrice,
			Area:          req.Area,
			Rooms:         req.Rooms,
			Street:        req.Street,
			Zip:           req.Zip,
			City:          req.City,
			Country:       req.Country,
			Longitude:     req.Longitude,
			Latitude:      req.Latitude,
			ListingStatus: req.ListingStatus,
		}

		listingID, err := createListing(db, listing, req.InitialTenants, principal)
		if err != nil {
			if errors.Is(err, errTooManyInitialTenants) {
				utils.BadRequestResponse(c, "More initial tenants than the listing capacity")
				return
			}
			utils.InternalServerErrorResponse(c, "Failed to create listing")
			return
		}

		utils.CreatedResponse(c, "Listing created successfully", gin.H{
			"listing_id": listingID,
		})
	}
}

// handleGetListing handles getting a specific listing
func handleGetListing(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid listing ID")
			return
		}

		listing, err := getListing(db, listingID)
		if err != nil {
			if errors.Is(err, errListingNotFound) {
				utils.NotFoundResponse(c, "Listing not found")
			} else {
				utils.InternalServerErrorResponse(c, "Failed to fetch listing")
			}
			return
		}

		utils.OKResponse(c, "Listing retrieved successfully", listing)
	}
}

// handleMyListings handles getting the caller's own listings
func handleMyListings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		listings, err := listingsByOwner(db, principal)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch listings")
			return
		}

		utils.OKResponse(c, "Listings retrieved successfully", listings)
	}
}

// handleSearchListings handles the public filtered search. Results are
// cached in Redis for a minute keyed by the raw query string.
func handleSearchListings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter SearchFilter
		if err := c.ShouldBindQuery(&filter); err != nil {
			utils.BadRequestResponse(c, "Invalid search parameters")
			return
		}

		cacheKey := searchCacheKey(c.Request.URL.RawQuery)
		if cached, err := utils.CacheGet(cacheKey); err == nil {
			var results []SearchResult
			if json.Unmarshal([]byte(cached), &results) == nil {
				utils.OKResponse(c, "Listings retrieved successfully", results)
				return
			}
		}

		results, err := searchListings(db, filter)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to search listings")
			return
		}

		if payload, err := json.Marshal(results); err == nil {
			if err := utils.CacheSet(cacheKey, string(payload), searchCacheTTL); err != nil {
				logrus.Warnf("Failed to cache search results: %v", err)
			}
		}

		utils.OKResponse(c, "Listings retrieved successfully", results)
	}
}

func searchCacheKey(rawQuery string) string {
	hash := sha256.Sum256([]byte(rawQuery))
	return "listings:search:" + hex.EncodeToString(hash[:])
}

// handleEditListing handles the sparse listing update
func handleEditListing(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		listingID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid listing ID")
			return
		}

		var update ListingUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if update.ListingStatus != nil {
			switch *update.ListingStatus {
			case models.ListingPublic, models.ListingPrivate, models.ListingHidden:
			default:
				utils.BadRequestResponse(c, "Listing status must be PUBLIC, PRIVATE or HIDDEN")
				return
			}
		}

		listing, err := editListing(db, listingID, update, principal)
		if err != nil {
			switch {
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing not found")
			case errors.Is(err, errNotListingOwner):
				utils.ForbiddenResponse(c, "Only the listing owner can edit the listing")
			case errors.Is(err, errCapacityBelowOccupancy):
				utils.ConflictResponse(c, "Capacity cannot be lower than the current number of tenants")
			case errors.Is(err, errCapacityExceeded):
				utils.ConflictResponse(c, "Adding these tenants would exceed the listing capacity")
			case errors.Is(err, errListingFull):
				utils.ConflictResponse(c, "A full listing cannot be made public")
			default:
				utils.InternalServerErrorResponse(c, "Failed to update listing")
			}
			return
		}

		utils.OKResponse(c, "Listing updated successfully", listing)
	}
}

// handleRemoveListing handles deleting a listing
func handleRemoveListing(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		listingID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid listing ID")
			return
		}

		if err := removeListing(db, listingID, principal); err != nil {
			switch {
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing not found")
			case errors.Is(err, errNotListingOwner):
				utils.ForbiddenResponse(c, "Only the listing owner can delete the listing")
			default:
				utils.InternalServerErrorResponse(c, "Failed to delete listing")
			}
			return
		}

		utils.OKResponse(c, "Listing deleted successfully", nil)
	}
}

// handleRemoveTenant handles removing a tenant from a listing
func handleRemoveTenant(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		tenantID, err := uuid.Parse(c.Param("tenant_id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid tenant ID")
			return
		}

		if err := removeTenant(db, tenantID, principal); err != nil {
			switch {
			case errors.Is(err, errTenantNotFound):
				utils.NotFoundResponse(c, "Tenant not found")
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing not found")
			case errors.Is(err, errNotListingOwner):
				utils.ForbiddenResponse(c, "Only the listing owner can remove tenants")
			default:
				utils.InternalServerErrorResponse(c, "Failed to remove tenant")
			}
			return
		}

		utils.OKResponse(c, "Tenant removed successfully", nil)
	}
}
