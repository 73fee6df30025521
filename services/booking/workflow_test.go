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

// fakeNotifier records published events instead of touching Kafka.
type fakeNotifier struct {
	events   []models.NotificationEvent
	failWith error
}

func (f *fakeNotifier) Publish(event models.NotificationEvent) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.events = append(f.events, event)
	return nil
}

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

func seedListing(t *testing.T, db *gorm.DB, owner models.User, maxTenants int, status models.ListingStatus) models.Listing {
	t.Helper()

	listing := models.Listing{
		ID:            uuid.New(),
		UserID:        owner.CognitoID,
		Title:         "Sunny room in Vinohrady",
		Description:   "Bright room in a shared flat close to the park.",
		MaxTenants:    maxTenants,
		MonthlyPrice:  650,
		Area:          78,
		Rooms:         3,
		City:          "Prague",
		Country:       "Czechia",
		ListingStatus: status,
	}
	require.NoError(t, db.Create(&listing).Error)
	return listing
}

func seedLinkedTenant(t *testing.T, db *gorm.DB, listing models.Listing, name string) models.Tenant {
	t.Helper()

	tenant := models.Tenant{ID: uuid.New(), Name: name, Bio: "Existing tenant"}
	require.NoError(t, db.Create(&tenant).Error)
	require.NoError(t, db.Create(&models.ListingTenant{
		ID:        uuid.New(),
		ListingID: listing.ID,
		TenantID:  tenant.ID,
	}).Error)
	return tenant
}

func seedPendingReservation(t *testing.T, db *gorm.DB, listing models.Listing, requester models.User, message string) models.Reservation {
	t.Helper()

	reservation := models.Reservation{
		ID:        uuid.New(),
		ListingID: listing.ID,
		UserID:    requester.CognitoID,
		Message:   message,
		Status:    models.ReservationPending,
	}
	require.NoError(t, db.Create(&reservation).Error)
	return reservation
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

func tenantCount(t *testing.T, db *gorm.DB, listingID uuid.UUID) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.ListingTenant{}).Where("listing_id = ?", listingID).Count(&count).Error)
	return count
}

func TestAcceptCreatesTenantAndLink(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 3, models.ListingPublic)
	reservation := seedPendingReservation(t, db, listing, requester, "I'd love to move in")

	result, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(owner))
	require.NoError(t, err)
	assert.False(t, result.IsListingFull)

	var updated models.Reservation
	require.NoError(t, db.First(&updated, "id = ?", reservation.ID).Error)
	assert.Equal(t, models.ReservationAccepted, updated.Status)

	var tenant models.Tenant
	require.NoError(t, db.First(&tenant, "name = ?", requester.Name).Error)
	assert.Equal(t, placeholderTenantBio, tenant.Bio)
	assert.EqualValues(t, 1, tenantCount(t, db, listing.ID))

	// Listing stays discoverable while below capacity
	var after models.Listing
	require.NoError(t, db.First(&after, "id = ?", listing.ID).Error)
	assert.Equal(t, models.ListingPublic, after.ListingStatus)

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, models.EventBookingAccepted, event.Type)
	assert.Equal(t, requester.Email, event.Recipient)
	assert.Equal(t, owner.Name, event.OwnerName)
	assert.Equal(t, owner.Email, event.OwnerEmail)
	assert.Equal(t, listing.Title, event.ListingTitle)
	assert.Equal(t, listing.MonthlyPrice, event.MonthlyPrice)
}

func TestAcceptFinalTenantPrivatizesListing(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 2, models.ListingPublic)
	seedLinkedTenant(t, db, listing, "First Tenant")
	reservation := seedPendingReservation(t, db, listing, requester, "")

	result, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(owner))
	require.NoError(t, err)
	assert.True(t, result.IsListingFull)

	var after models.Listing
	require.NoError(t, db.First(&after, "id = ?", listing.ID).Error)
	assert.Equal(t, models.ListingPrivate, after.ListingStatus)
	assert.EqualValues(t, 2, tenantCount(t, db, listing.ID))
}

func TestAcceptAtCapacityRejected(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 1, models.ListingPrivate)
	seedLinkedTenant(t, db, listing, "Only Tenant")
	reservation := seedPendingReservation(t, db, listing, requester, "")

	_, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(owner))
	assert.True(t, errors.Is(err, errListingFull))

	// Nothing changed and no email went out
	var after models.Reservation
	require.NoError(t, db.First(&after, "id = ?", reservation.ID).Error)
	assert.Equal(t, models.ReservationPending, after.Status)
	assert.EqualValues(t, 1, tenantCount(t, db, listing.ID))
	assert.Empty(t, events.events)
}

func TestRejectCreatesNoTenant(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 2, models.ListingPublic)
	reservation := seedPendingReservation(t, db, listing, requester, "")

	result, err := resolveReservation(db, events, reservation.ID, actionReject, principal(owner))
	require.NoError(t, err)
	assert.False(t, result.IsListingFull)

	var after models.Reservation
	require.NoError(t, db.First(&after, "id = ?", reservation.ID).Error)
	assert.Equal(t, models.ReservationRejected, after.Status)
	assert.EqualValues(t, 0, tenantCount(t, db, listing.ID))

	require.Len(t, events.events, 1)
	event := events.events[0]
	assert.Equal(t, models.EventBookingRejected, event.Type)
	assert.Equal(t, requester.Email, event.Recipient)
	// Rejections stay generic: no owner contact, no price
	assert.Empty(t, event.OwnerEmail)
	assert.Zero(t, event.MonthlyPrice)
}

func TestResolveTerminalReservationConflicts(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 3, models.ListingPublic)
	reservation := seedPendingReservation(t, db, listing, requester, "")

	_, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(owner))
	require.NoError(t, err)

	for _, action := range []resolveAction{actionAccept, actionReject} {
		_, err = resolveReservation(db, events, reservation.ID, action, principal(owner))
		assert.True(t, errors.Is(err, errAlreadyResolved))
	}

	// Re-resolving must not duplicate the tenant or the email
	assert.EqualValues(t, 1, tenantCount(t, db, listing.ID))
	assert.Len(t, events.events, 1)
}

func TestResolveByNonOwnerForbidden(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	stranger := seedUser(t, db, "Eva Cizi", "eva@example.com")
	listing := seedListing(t, db, owner, 2, models.ListingPublic)
	reservation := seedPendingReservation(t, db, listing, requester, "")

	_, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(stranger))
	assert.True(t, errors.Is(err, errNotListingOwner))

	var after models.Reservation
	require.NoError(t, db.First(&after, "id = ?", reservation.ID).Error)
	assert.Equal(t, models.ReservationPending, after.Status)
	assert.EqualValues(t, 0, tenantCount(t, db, listing.ID))
	assert.Empty(t, events.events)
}

func TestResolveUnknownReservationNotFound(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")

	_, err := resolveReservation(db, events, uuid.New(), actionAccept, principal(owner))
	assert.True(t, errors.Is(err, errReservationNotFound))
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	db := openTestDB(t)
	events := &fakeNotifier{failWith: errors.New("broker unreachable")}

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	listing := seedListing(t, db, owner, 2, models.ListingPublic)
	reservation := seedPendingReservation(t, db, listing, requester, "")

	result, err := resolveReservation(db, events, reservation.ID, actionAccept, principal(owner))
	require.NoError(t, err)
	assert.False(t, result.IsListingFull)

	// The committed transition is the source of truth
	var after models.Reservation
	require.NoError(t, db.First(&after, "id = ?", reservation.ID).Error)
	assert.Equal(t, models.ReservationAccepted, after.Status)
	assert.EqualValues(t, 1, tenantCount(t, db, listing.ID))
}

func TestPendingReservationsOwnerOnly(t *testing.T) {
	db := openTestDB(t)

	owner := seedUser(t, db, "Olga Ownerova", "olga@example.com")
	requester := seedUser(t, db, "Tomas Novak", "tomas@example.com")
	stranger := seedUser(t, db, "Eva Cizi", "eva@example.com")
	listing := seedListing(t, db, owner, 2, models.ListingPublic)
	seedPendingReservation(t, db, listing, requester, "hello")

	reservations, err := pendingReservations(db, listing.ID, principal(owner))
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, requester.CognitoID, reservations[0].UserID)

	_, err = pendingReservations(db, listing.ID, principal(stranger))
	assert.True(t, errors.Is(err, errNotListingOwner))
}
