package main

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flatmates/flatmates-backend/shared/models"
)

// Typed workflow failures, mapped to HTTP statuses in the handlers.
var (
	errReservationNotFound = errors.New("booking request not found")
	errListingNotFound     = errors.New("listing not found")
	errRequesterNotFound   = errors.New("requesting user not found")
	errNotListingOwner     = errors.New("only the listing owner can resolve booking requests")
	errAlreadyResolved     = errors.New("booking request has already been resolved")
	errListingFull         = errors.New("listing is already at full capacity")
	errDuplicateRequest    = errors.New("user already has a pending request for this listing")
	errOwnerEmailMissing   = errors.New("listing owner has no contact email")
)

type resolveAction string

const (
	actionAccept resolveAction = "ACCEPT"
	actionReject resolveAction = "REJECT"
)

// resolveResult is returned to the owner so the UI can show the
// "listing is now full" dialog.
type resolveResult struct {
	IsListingFull bool `json:"is_listing_full"`
}

const placeholderTenantBio = "New tenant - bio coming soon."
const placeholderTenantImage = "https://i.imgur.com/OvMZBs9.jpg"

// notifier queues a notification event for the notification service.
// Delivery is best-effort; the workflow never fails on a publish error.
type notifier interface {
	Publish(event models.NotificationEvent) error
}

// forUpdate adds a row lock on databases that support it. The sqlite
// driver used in tests rejects FOR UPDATE, and in-memory sqlite is
// single-writer anyway.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// createReservation inserts a pending booking request for the listing and
// notifies the owner. A user may have at most one outstanding pending
// request per listing.
func createReservation(db *gorm.DB, events notifier, listingID uuid.UUID, message string, requester *models.UserInfo) (uuid.UUID, error) {
	var listing models.Listing
	if err := db.Preload("Creator").First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, errListingNotFound
		}
		return uuid.Nil, err
	}

	// Without an owner email the booking notification cannot be built
	if listing.Creator == nil || listing.Creator.Email == "" {
		return uuid.Nil, errOwnerEmailMissing
	}

	var requesterUser models.User
	if err := db.First(&requesterUser, "cognito_id = ?", requester.CognitoID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, errRequesterNotFound
		}
		return uuid.Nil, err
	}

	var pendingCount int64
	if err := db.Model(&models.Reservation{}).
		Where("listing_id = ? AND user_id = ? AND status = ?", listingID, requester.CognitoID, models.ReservationPending).
		Count(&pendingCount).Error; err != nil {
		return uuid.Nil, err
	}
	if pendingCount > 0 {
		return uuid.Nil, errDuplicateRequest
	}

	reservation := models.Reservation{
		ID:        uuid.New(),
		ListingID: listingID,
		UserID:    requester.CognitoID,
		Message:   message,
		Status:    models.ReservationPending,
	}
	if err := db.Create(&reservation).Error; err != nil {
		return uuid.Nil, err
	}

	publishEvent(events, models.NotificationEvent{
		ID:           uuid.New(),
		Type:         models.EventBookingRequest,
		Recipient:    listing.Creator.Email,
		TenantName:   requesterUser.Name,
		TenantEmail:  requesterUser.Email,
		OwnerName:    listing.Creator.Name,
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		Message:      message,
		Timestamp:    time.Now(),
	})

	return reservation.ID, nil
}

// resolveReservation moves a pending booking request to its terminal
// state. On ACCEPT the status update, tenant insert, listing link and
// capacity check all run in one transaction under a row lock on the
// listing, so concurrent accepts on a near-full listing serialize and
// the tenant count can never exceed max_tenants. The notification is
// published only after the transaction commits.
func resolveReservation(db *gorm.DB, events notifier, reservationID uuid.UUID, action resolveAction, actor *models.UserInfo) (resolveResult, error) {
	var result resolveResult
	var event models.NotificationEvent

	err := db.Transaction(func(tx *gorm.DB) error {
		var reservation models.Reservation
		if err := tx.Preload("User").First(&reservation, "id = ?", reservationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errReservationNotFound
			}
			return err
		}

		var listing models.Listing
		if err := forUpdate(tx).Preload("Creator").First(&listing, "id = ?", reservation.ListingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errListingNotFound
			}
			return err
		}

		if listing.UserID != actor.CognitoID {
			return errNotListingOwner
		}

		if reservation.Status.IsTerminal() {
			return errAlreadyResolved
		}

		if reservation.User == nil {
			return errRequesterNotFound
		}

		if action == actionReject {
			if err := tx.Model(&reservation).Update("status", models.ReservationRejected).Error; err != nil {
				return err
			}
			event = rejectedEvent(&listing, &reservation)
			return nil
		}

		var tenantCount int64
		if err := tx.Model(&models.ListingTenant{}).
			Where("listing_id = ?", listing.ID).
			Count(&tenantCount).Error; err != nil {
			return err
		}
		if int(tenantCount) >= listing.MaxTenants {
			return errListingFull
		}

		if err := tx.Model(&reservation).Update("status", models.ReservationAccepted).Error; err != nil {
			return err
		}

		tenant := models.Tenant{
			ID:    uuid.New(),
			Name:  reservation.User.Name,
			Bio:   placeholderTenantBio,
			Image: placeholderTenantImage,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		link := models.ListingTenant{
			ID:        uuid.New(),
			ListingID: listing.ID,
			TenantID:  tenant.ID,
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		// Capacity is derived from listing_tenants rows, never a cached
		// counter, so recount after the insert
		if int(tenantCount)+1 == listing.MaxTenants {
			if err := tx.Model(&listing).Update("listing_status", models.ListingPrivate).Error; err != nil {
				return err
			}
			result.IsListingFull = true
		}

		event = acceptedEvent(&listing, &reservation)
		return nil
	})
	if err != nil {
		return resolveResult{}, err
	}

	publishEvent(events, event)
	return result, nil
}

// pendingReservations lists the open booking requests for a listing the
// actor owns.
func pendingReservations(db *gorm.DB, listingID uuid.UUID, actor *models.UserInfo) ([]models.Reservation, error) {
	var listing models.Listing
	if err := db.First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errListingNotFound
		}
		return nil, err
	}

	if listing.UserID != actor.CognitoID {
		return nil, errNotListingOwner
	}

	var reservations []models.Reservation
	if err := db.Preload("User").
		Where("listing_id = ? AND status = ?", listingID, models.ReservationPending).
		Order("created_at ASC").
		Find(&reservations).Error; err != nil {
		return nil, err
	}

	return reservations, nil
}

func acceptedEvent(listing *models.Listing, reservation *models.Reservation) models.NotificationEvent {
	ownerName, ownerEmail := "", ""
	if listing.Creator != nil {
		ownerName = listing.Creator.Name
		ownerEmail = listing.Creator.Email
	}
	return models.NotificationEvent{
		ID:           uuid.New(),
		Type:         models.EventBookingAccepted,
		Recipient:    reservation.User.Email,
		TenantName:   reservation.User.Name,
		OwnerName:    ownerName,
		OwnerEmail:   ownerEmail,
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		MonthlyPrice: listing.MonthlyPrice,
		Timestamp:    time.Now(),
	}
}

// Rejection notifications are deliberately sparse so applicants are not
// discouraged from reapplying elsewhere.
func rejectedEvent(listing *models.Listing, reservation *models.Reservation) models.NotificationEvent {
	ownerName := ""
	if listing.Creator != nil {
		ownerName = listing.Creator.Name
	}
	return models.NotificationEvent{
		ID:           uuid.New(),
		Type:         models.EventBookingRejected,
		Recipient:    reservation.User.Email,
		TenantName:   reservation.User.Name,
		OwnerName:    ownerName,
		ListingID:    listing.ID,
		ListingTitle: listing.Title,
		Timestamp:    time.Now(),
	}
}

// publishEvent queues the notification. The data mutation has already
// committed; a publish failure is logged and never bubbles up.
func publishEvent(events notifier, event models.NotificationEvent) {
	if event.Type == "" {
		return
	}
	if err := events.Publish(event); err != nil {
		logrus.Warnf("Failed to queue %s notification for %s: %v", event.Type, event.Recipient, err)
	}
}
