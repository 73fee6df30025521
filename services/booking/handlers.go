package main

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/middleware"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

// BookListingRequest represents the booking intake request
type BookListingRequest struct {
	ListingID      string `json:"listing_id" binding:"required,uuid"`
	MessageToOwner string `json:"message_to_owner"`
}

// ResolveReservationRequest represents the owner's accept/reject decision
type ResolveReservationRequest struct {
	Action string `json:"action" binding:"required,oneof=ACCEPT REJECT"`
}

// handleBookListing handles a prospective tenant's booking request
func handleBookListing(db *gorm.DB, events notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		var req BookListingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid listing ID")
			return
		}

		reservationID, err := createReservation(db, events, listingID, req.MessageToOwner, principal)
		if err != nil {
			switch {
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing not found")
			case errors.Is(err, errRequesterNotFound):
				utils.NotFoundResponse(c, "User account not found")
			case errors.Is(err, errDuplicateRequest):
				utils.ConflictResponse(c, "You already have a pending request for this listing")
			case errors.Is(err, errOwnerEmailMissing):
				utils.InternalServerErrorResponse(c, "Could not retrieve property owner email")
			default:
				utils.InternalServerErrorResponse(c, "Failed to create booking request")
			}
			return
		}

		utils.CreatedResponse(c, "Booking request sent", gin.H{
			"reservation_id": reservationID,
		})
	}
}

// handleResolveReservation handles the owner accepting or rejecting a
// booking request
func handleResolveReservation(db *gorm.DB, events notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		reservationID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			utils.BadRequestResponse(c, "Invalid reservation ID")
			return
		}

		var req ResolveReservationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format. Action must be ACCEPT or REJECT")
			return
		}

		result, err := resolveReservation(db, events, reservationID, resolveAction(req.Action), principal)
		if err != nil {
			switch {
			case errors.Is(err, errReservationNotFound):
				utils.NotFoundResponse(c, "Booking request not found")
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing no longer exists")
			case errors.Is(err, errNotListingOwner):
				utils.ForbiddenResponse(c, "Only the listing owner can resolve booking requests")
			case errors.Is(err, errAlreadyResolved):
				utils.ConflictResponse(c, "This booking request has already been resolved")
			case errors.Is(err, errListingFull):
				utils.ConflictResponse(c, "Listing is already at full capacity")
			default:
				utils.InternalServerErrorResponse(c, "Failed to resolve booking request")
			}
			return
		}

		utils.OKResponse(c, "Booking request resolved", result)
	}
}

// handleListPendingReservations returns the open booking requests for a
// listing the caller owns
func handleListPendingReservations(db *gorm.DB) gin.HandlerFunc {
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

		reservations, err := pendingReservations(db, listingID, principal)
		if err != nil {
			switch {
			case errors.Is(err, errListingNotFound):
				utils.NotFoundResponse(c, "Listing not found")
			case errors.Is(err, errNotListingOwner):
				utils.ForbiddenResponse(c, "Only the listing owner can view booking requests")
			default:
				utils.InternalServerErrorResponse(c, "Failed to fetch booking requests")
			}
			return
		}

		utils.OKResponse(c, "Booking requests retrieved successfully", reservations)
	}
}
