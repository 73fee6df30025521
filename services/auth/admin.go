package main

import (
	"errors"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/middleware"
	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

// Typed admin failures, mapped to HTTP statuses in the handlers.
var (
	errUserNotFound       = errors.New("user not found")
	errRoleNotSufficient  = errors.New("role is not sufficient")
	errCannotAssignRole   = errors.New("cannot assign this role")
	errCannotModifyTarget = errors.New("cannot modify this user's role")
)

// verifyUser flips a user's verified status. Allowed for roles with the
// verification right only.
func verifyUser(db *gorm.DB, targetID string, status models.UserVerified, actor *models.UserInfo) error {
	if !models.RightToVerifyUsers[actor.Role] {
		return errRoleNotSufficient
	}

	result := db.Model(&models.User{}).
		Where("cognito_id = ?", targetID).
		Update("verified_status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errUserNotFound
	}

	return nil
}

// changeUserRole assigns a new role to the target user. The actor must
// be allowed to hand out the new role AND to modify a holder of the
// target's current role, so an ADMIN can never touch a SUPERADMIN.
func changeUserRole(db *gorm.DB, targetID string, newRole models.UserRole, actor *models.UserInfo) error {
	if !models.CanAssignRole(actor.Role, newRole) {
		return errCannotAssignRole
	}

	var target models.User
	if err := db.Where("cognito_id = ?", targetID).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errUserNotFound
		}
		return err
	}

	if !models.CanModifyUserRole(actor.Role, target.Role) {
		return errCannotModifyTarget
	}

	return db.Model(&target).Update("role", newRole).Error
}

// VerifyUserRequest represents the admin verification request
type VerifyUserRequest struct {
	VerifiedStatus models.UserVerified `json:"verified_status" binding:"required,oneof=VERIFIED UNVERIFIED"`
}

// ChangeRoleRequest represents the admin role change request
type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" binding:"required,oneof=USER ADMIN SUPERADMIN"`
}

// handleListUsers handles getting all users (admin only)
func handleListUsers(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var users []models.User
		if err := db.Order("created_at DESC").Find(&users).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to fetch users")
			return
		}

		utils.OKResponse(c, "Users retrieved successfully", users)
	}
}

// handleVerifyUser handles changing a user's verified status (admin only)
func handleVerifyUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		targetID := c.Param("id")

		var req VerifyUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format. Status must be VERIFIED or UNVERIFIED")
			return
		}

		if err := verifyUser(db, targetID, req.VerifiedStatus, principal); err != nil {
			switch {
			case errors.Is(err, errRoleNotSufficient):
				utils.ForbiddenResponse(c, "Your role is not sufficient")
			case errors.Is(err, errUserNotFound):
				utils.NotFoundResponse(c, "User not found")
			default:
				utils.InternalServerErrorResponse(c, "Failed to update verified status")
			}
			return
		}

		// Mirror the change into Cognito so fresh tokens carry it
		updateCognitoAttribute(targetID, "custom:verified_status", string(req.VerifiedStatus))

		utils.OKResponse(c, "Verified status updated successfully", map[string]interface{}{
			"cognito_id":      targetID,
			"verified_status": req.VerifiedStatus,
		})
	}
}

// handleChangeUserRole handles assigning a new role to a user (admin only)
func handleChangeUserRole(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		targetID := c.Param("id")

		var req ChangeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format. Role must be USER, ADMIN or SUPERADMIN")
			return
		}

		if err := changeUserRole(db, targetID, req.Role, principal); err != nil {
			switch {
			case errors.Is(err, errCannotAssignRole):
				utils.ForbiddenResponse(c, "You cannot assign this role")
			case errors.Is(err, errCannotModifyTarget):
				utils.ForbiddenResponse(c, "You don't have permission to modify this user's role")
			case errors.Is(err, errUserNotFound):
				utils.NotFoundResponse(c, "User not found")
			default:
				utils.InternalServerErrorResponse(c, "Failed to update user role")
			}
			return
		}

		// Mirror the change into Cognito so fresh tokens carry it
		updateCognitoAttribute(targetID, "custom:role", string(req.Role))

		// Cached sessions still hold the old role; force a re-login
		if err := utils.RevokeAllUserSessions(targetID); err != nil {
			logrus.Warnf("Failed to revoke sessions for %s after role change: %v", targetID, err)
		}

		utils.OKResponse(c, "User role updated successfully", map[string]interface{}{
			"cognito_id": targetID,
			"role":       req.Role,
		})
	}
}

// updateCognitoAttribute pushes an attribute change to Cognito. The users
// table is authoritative, so a Cognito failure is logged, not surfaced.
func updateCognitoAttribute(cognitoID, name, value string) {
	err := circuitBreaker.Call(func() error {
		_, updateErr := cognitoClient.AdminUpdateUserAttributes(&cognitoidentityprovider.AdminUpdateUserAttributesInput{
			UserPoolId: aws.String(os.Getenv("COGNITO_USER_POOL_ID")),
			Username:   aws.String(cognitoID),
			UserAttributes: []*cognitoidentityprovider.AttributeType{
				{
					Name:  aws.String(name),
					Value: aws.String(value),
				},
			},
		})
		return updateErr
	})

	if err != nil {
		logrus.Warnf("Failed to update %s for %s in Cognito: %v", name, cognitoID, err)
	}
}
