package main

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flatmates/flatmates-backend/shared/models"
)

// Typed listing failures, mapped to HTTP statuses in the handlers.
var (
	errListingNotFound        = errors.New("listing not found")
	errTenantNotFound         = errors.New("tenant not found")
	errNotListingOwner        = errors.New("only the listing owner can modify the listing")
	errTooManyInitialTenants  = errors.New("more initial tenants than the listing capacity")
	errCapacityBelowOccupancy = errors.New("capacity cannot be lowered below the current tenant count")
	errCapacityExceeded       = errors.New("adding these tenants would exceed the listing capacity")
	errListingFull            = errors.New("a full listing cannot be made public")
)

const placeholderTenantImage = "https://i.imgur.com/OvMZBs9.jpg"

// TenantInput describes a flatmate added by the owner, with optional
// social links.
type TenantInput struct {
	Name    string        `json:"name" binding:"required"`
	Bio     string        `json:"bio"`
	Image   string        `json:"image"`
	Socials []SocialInput `json:"socials" binding:"dive"`
}

// SocialInput is one social media link for an added tenant.
type SocialInput struct {
	Network string `json:"network" binding:"required,oneof=facebook instagram x"`
	URL     string `json:"url" binding:"required,url"`
}

// ListingUpdate carries the sparse editListing fields. Nil means "leave
// unchanged".
type ListingUpdate struct {
	Title         *string               `json:"title"`
	Description   *string               `json:"description"`
	MaxTenants    *int                  `json:"max_tenants"`
	MonthlyPrice  *int                  `json:"monthly_price"`
	Area          *int                  `json:"area"`
	Rooms         *int                  `json:"rooms"`
	Street        *string               `json:"street"`
	Zip           *string               `json:"zip"`
	City          *string               `json:"city"`
	Country       *string               `json:"country"`
	Longitude     *float64              `json:"longitude"`
	Latitude      *float64              `json:"latitude"`
	ListingStatus *models.ListingStatus `json:"listing_status"`
	NewTenants    []TenantInput         `json:"new_tenants" binding:"dive"`
}

// forUpdate adds a row lock on databases that support it. The sqlite
// driver used in tests rejects FOR UPDATE.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// createTenant inserts a tenant with socials and links it to the listing.
func createTenant(tx *gorm.DB, listingID uuid.UUID, input TenantInput) error {
	image := input.Image
	if image == "" {
		image = placeholderTenantImage
	}

	tenant := models.Tenant{
		ID:    uuid.New(),
		Name:  input.Name,
		Bio:   input.Bio,
		Image: image,
	}
	if err := tx.Create(&tenant).Error; err != nil {
		return err
	}

	for _, social := range input.Socials {
		link := models.TenantSocial{
			ID:       uuid.New(),
			TenantID: tenant.ID,
			Network:  models.SocialNetwork(social.Network),
			URL:      social.URL,
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}

	return tx.Create(&models.ListingTenant{
		ID:        uuid.New(),
		ListingID: listingID,
		TenantID:  tenant.ID,
	}).Error
}

// createListing inserts a listing and its initial tenants in one
// transaction. New listings start HIDDEN unless the owner says otherwise;
// a listing created at full occupancy starts PRIVATE instead of PUBLIC.
func createListing(db *gorm.DB, listing models.Listing, initialTenants []TenantInput, owner *models.UserInfo) (uuid.UUID, error) {
	if len(initialTenants) > listing.MaxTenants {
		return uuid.Nil, errTooManyInitialTenants
	}

	listing.ID = uuid.New()
	listing.UserID = owner.CognitoID
	if listing.ListingStatus == "" {
		listing.ListingStatus = models.ListingHidden
	}
	if len(initialTenants) == listing.MaxTenants && listing.ListingStatus == models.ListingPublic {
		listing.ListingStatus = models.ListingPrivate
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&listing).Error; err != nil {
			return err
		}
		for _, input := range initialTenants {
			if err := createTenant(tx, listing.ID, input); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return listing.ID, nil
}

// getListing loads a listing with its creator, tenants and their socials.
func getListing(db *gorm.DB, listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	err := db.Preload("Creator").
		Preload("Tenants.Tenant.Socials").
		First(&listing, "id = ?", listingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// listingsByOwner returns all listings created by the owner, newest first.
func listingsByOwner(db *gorm.DB, owner *models.UserInfo) ([]models.Listing, error) {
	var listings []models.Listing
	err := db.Preload("Tenants.Tenant").
		Where("user_id = ?", owner.CognitoID).
		Order("created_at DESC").
		Find(&listings).Error
	return listings, err
}

// editListing applies a sparse update and inserts any added tenants in
// one transaction under a row lock on the listing. The capacity
// invariant is enforced server side: max_tenants can never drop below
// the linked tenant count, added tenants can never push the count over
// max_tenants, and a full listing can never be PUBLIC.
func editListing(db *gorm.DB, listingID uuid.UUID, update ListingUpdate, actor *models.UserInfo) (*models.Listing, error) {
	var listing models.Listing

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errListingNotFound
			}
			return err
		}

		if listing.UserID != actor.CognitoID {
			return errNotListingOwner
		}

		var tenantCount int64
		if err := tx.Model(&models.ListingTenant{}).
			Where("listing_id = ?", listing.ID).
			Count(&tenantCount).Error; err != nil {
			return err
		}

		maxTenants := listing.MaxTenants
		if update.MaxTenants != nil {
			if *update.MaxTenants < int(tenantCount) {
				return errCapacityBelowOccupancy
			}
			maxTenants = *update.MaxTenants
		}
		if int(tenantCount)+len(update.NewTenants) > maxTenants {
			return errCapacityExceeded
		}

		if update.Title != nil {
			listing.Title = *update.Title
		}
		if update.Description != nil {
			listing.Description = *update.Description
		}
		listing.MaxTenants = maxTenants
		if update.MonthlyPrice != nil {
			listing.MonthlyPrice = *update.MonthlyPrice
		}
		if update.Area != nil {
			listing.Area = *update.Area
		}
		if update.Rooms != nil {
			listing.Rooms = *update.Rooms
		}
		if update.Street != nil {
			listing.Street = *update.Street
		}
		if update.Zip != nil {
			listing.Zip = *update.Zip
		}
		if update.City != nil {
			listing.City = *update.City
		}
		if update.Country != nil {
			listing.Country = *update.Country
		}
		if update.Longitude != nil {
			listing.Longitude = *update.Longitude
		}
		if update.Latitude != nil {
			listing.Latitude = *update.Latitude
		}
		if update.ListingStatus != nil {
			listing.ListingStatus = *update.ListingStatus
		}

		finalCount := int(tenantCount) + len(update.NewTenants)
		if finalCount == listing.MaxTenants {
			if update.ListingStatus != nil && *update.ListingStatus == models.ListingPublic {
				return errListingFull
			}
			if listing.ListingStatus == models.ListingPublic {
				listing.ListingStatus = models.ListingPrivate
			}
		}

		for _, input := range update.NewTenants {
			if err := createTenant(tx, listing.ID, input); err != nil {
				return err
			}
		}

		return tx.Save(&listing).Error
	})
	if err != nil {
		return nil, err
	}

	return &listing, nil
}

// removeListing deletes a listing together with its tenants, reservations
// and tenant links.
func removeListing(db *gorm.DB, listingID uuid.UUID, actor *models.UserInfo) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := forUpdate(tx).First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errListingNotFound
			}
			return err
		}

		if listing.UserID != actor.CognitoID {
			return errNotListingOwner
		}

		var links []models.ListingTenant
		if err := tx.Where("listing_id = ?", listing.ID).Find(&links).Error; err != nil {
			return err
		}
		for _, link := range links {
			if err := deleteTenant(tx, link.TenantID); err != nil {
				return err
			}
		}

		if err := tx.Where("listing_id = ?", listing.ID).Delete(&models.ListingTenant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("listing_id = ?", listing.ID).Delete(&models.Reservation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&listing).Error
	})
}

// removeTenant unlinks and deletes a tenant from a listing the actor
// owns. The listing visibility is left alone; the owner decides when a
// freed spot goes back to PUBLIC.
func removeTenant(db *gorm.DB, tenantID uuid.UUID, actor *models.UserInfo) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var link models.ListingTenant
		if err := tx.First(&link, "tenant_id = ?", tenantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errTenantNotFound
			}
			return err
		}

		var listing models.Listing
		if err := forUpdate(tx).First(&listing, "id = ?", link.ListingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errListingNotFound
			}
			return err
		}

		if listing.UserID != actor.CognitoID {
			return errNotListingOwner
		}

		if err := tx.Delete(&link).Error; err != nil {
			return err
		}
		return deleteTenant(tx, tenantID)
	})
}

func deleteTenant(tx *gorm.DB, tenantID uuid.UUID) error {
	if err := tx.Where("tenant_id = ?", tenantID).Delete(&models.TenantSocial{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Tenant{}, "id = ?", tenantID).Error
}
