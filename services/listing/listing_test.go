package main

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/flatmates/flatmates-backend/shared/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory DB
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Tenant{},
		&models.TenantSocial{},
		&models.ListingTenant{},
		&models.Reservation{},
	))

	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, email string) models.User {
	t.Helper()

	user := models.User{
		CognitoID:      uuid.New().String(),
		Name:           name,
		Email:          email,
		Role:           models.RoleUser,
		VerifiedStatus: models.UserVerifiedYes,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func principal(user models.User) *models.UserInfo {
	return &models.UserInfo{
		CognitoID:      user.CognitoID,
		Name:           user.Name,
		Email:          user.Email,
		Role:           user.Role,
		VerifiedStatus: user.VerifiedStatus,
	}
}

func baseListing(maxTenants int) models.Listing {
	return models.Listing{
		Title:         "Sunny room in Vinohrady",
		Description:   "Bright room in a shared flat close to the park.",
		MaxTenants:    maxTenants,
		MonthlyPrice:  650,
		Area:          78,
		Rooms:         3,
		City:          "Prague",
		Country:       "Czechia",
		ListingStatus: models.ListingPublic,
	}
}

func TestCreateListingWithInitialTenants(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{
		{
			Name: "Karel Stary",
			Bio:  "Quiet, works from home",
			Socials: []SocialInput{
				{Network: "instagram", URL: "https://instagram.com/karel"},
			},
		},
	}

	listingID, err := createListing(db, baseListing(3), initial, principal(owner))
	require.NoError(t, err)

	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	assert.Equal(t, owner.CognitoID, listing.UserID)
	assert.Equal(t, models.ListingPublic, listing.ListingStatus)
	require.Len(t, listing.Tenants, 1)

	tenant := listing.Tenants[0].Tenant
	require.NotNil(t, tenant)
	assert.Equal(t, "Karel Stary", tenant.Name)
	assert.Equal(t, placeholderTenantImage, tenant.Image)
	require.Len(t, tenant.Socials, 1)
	assert.Equal(t, models.SocialInstagram, tenant.Socials[0].Network)
}

func TestCreateListingDefaultsToHidden(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	input := baseListing(2)
	input.ListingStatus = ""

	listingID, err := createListing(db, input, nil, principal(owner))
	require.NoError(t, err)

	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingHidden, listing.ListingStatus)
}

func TestCreateListingAtFullOccupancyIsPrivate(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}, {Name: "B"}}

	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPrivate, listing.ListingStatus)
}

func TestCreateListingTooManyInitialTenants(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}, {Name: "B"}, {Name: "C"}}

	_, err := createListing(db, baseListing(2), initial, principal(owner))
	assert.True(t, errors.Is(err, errTooManyInitialTenants))

	var count int64
	require.NoError(t, db.Model(&models.Listing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEditListingSparseUpdate(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	listingID, err := createListing(db, baseListing(3), nil, principal(owner))
	require.NoError(t, err)

	newTitle := "Renovated room in Vinohrady"
	newPrice := 700
	updated, err := editListing(db, listingID, ListingUpdate{
		Title:        &newTitle,
		MonthlyPrice: &newPrice,
	}, principal(owner))
	require.NoError(t, err)

	assert.Equal(t, newTitle, updated.Title)
	assert.Equal(t, newPrice, updated.MonthlyPrice)
	// Untouched fields survive
	assert.Equal(t, "Prague", updated.City)
	assert.Equal(t, 3, updated.MaxTenants)
}

func TestEditListingCapacityBelowOccupancy(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}, {Name: "B"}}
	listingID, err := createListing(db, baseListing(3), initial, principal(owner))
	require.NoError(t, err)

	lower := 1
	_, err = editListing(db, listingID, ListingUpdate{MaxTenants: &lower}, principal(owner))
	assert.True(t, errors.Is(err, errCapacityBelowOccupancy))
}

func TestEditListingAddedTenantsRespectCapacity(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}}
	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	_, err = editListing(db, listingID, ListingUpdate{
		NewTenants: []TenantInput{{Name: "B"}, {Name: "C"}},
	}, principal(owner))
	assert.True(t, errors.Is(err, errCapacityExceeded))

	// Rolled back: only the initial tenant remains
	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	assert.Len(t, listing.Tenants, 1)
}

func TestEditListingFillingPrivatizes(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}}
	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	updated, err := editListing(db, listingID, ListingUpdate{
		NewTenants: []TenantInput{{Name: "B"}},
	}, principal(owner))
	require.NoError(t, err)
	assert.Equal(t, models.ListingPrivate, updated.ListingStatus)
}

func TestEditListingFullCannotGoPublic(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{Name: "A"}, {Name: "B"}}
	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	public := models.ListingPublic
	_, err = editListing(db, listingID, ListingUpdate{ListingStatus: &public}, principal(owner))
	assert.True(t, errors.Is(err, errListingFull))
}

func TestEditListingNonOwnerForbidden(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	stranger := seedUser(t, db, "Eva Cizi", "eva@example.com")

	listingID, err := createListing(db, baseListing(2), nil, principal(owner))
	require.NoError(t, err)

	newTitle := "Hijacked"
	_, err = editListing(db, listingID, ListingUpdate{Title: &newTitle}, principal(stranger))
	assert.True(t, errors.Is(err, errNotListingOwner))
}

func TestRemoveTenant(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	initial := []TenantInput{{
		Name:    "Karel Stary",
		Socials: []SocialInput{{Network: "facebook", URL: "https://facebook.com/karel"}},
	}}
	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	require.Len(t, listing.Tenants, 1)
	tenantID := listing.Tenants[0].TenantID

	require.NoError(t, removeTenant(db, tenantID, principal(owner)))

	// Tenant, link and socials are all gone
	var tenantRows, linkRows, socialRows int64
	require.NoError(t, db.Model(&models.Tenant{}).Count(&tenantRows).Error)
	require.NoError(t, db.Model(&models.ListingTenant{}).Count(&linkRows).Error)
	require.NoError(t, db.Model(&models.TenantSocial{}).Count(&socialRows).Error)
	assert.Zero(t, tenantRows)
	assert.Zero(t, linkRows)
	assert.Zero(t, socialRows)

	// Visibility is untouched; republishing stays an owner decision
	after, err := getListing(db, listingID)
	require.NoError(t, err)
	assert.Equal(t, models.ListingPublic, after.ListingStatus)
}

func TestRemoveTenantNonOwnerForbidden(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	stranger := seedUser(t, db, "Eva Cizi", "eva@example.com")

	initial := []TenantInput{{Name: "Karel Stary"}}
	listingID, err := createListing(db, baseListing(2), initial, principal(owner))
	require.NoError(t, err)

	listing, err := getListing(db, listingID)
	require.NoError(t, err)
	tenantID := listing.Tenants[0].TenantID

	err = removeTenant(db, tenantID, principal(stranger))
	assert.True(t, errors.Is(err, errNotListingOwner))
}

func TestRemoveListingCleansUp(t *testing.T) {
	db := openTestDB(t)
	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")

	initial := []TenantInput{{Name: "Karel Stary"}}
	listingID, err := createListing(db, baseListing(3), initial, principal(owner))
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.Reservation{
		ID:        uuid.New(),
		ListingID: listingID,
		UserID:    requester.CognitoID,
		Status:    models.ReservationPending,
	}).Error)

	require.NoError(t, removeListing(db, listingID, principal(owner)))

	_, err = getListing(db, listingID)
	assert.True(t, errors.Is(err, errListingNotFound))

	var tenantRows, linkRows, reservationRows int64
	require.NoError(t, db.Model(&models.Tenant{}).Count(&tenantRows).Error)
	require.NoError(t, db.Model(&models.ListingTenant{}).Count(&linkRows).Error)
	require.NoError(t, db.Model(&models.Reservation{}).Count(&reservationRows).Error)
	assert.Zero(t, tenantRows)
	assert.Zero(t, linkRows)
	assert.Zero(t, reservationRows)
}
