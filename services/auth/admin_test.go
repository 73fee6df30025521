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

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}))
	return db
}

func seedUserWithRole(t *testing.T, db *gorm.DB, role models.UserRole) models.User {
	t.Helper()

	user := models.User{
		CognitoID:      uuid.New().String(),
		Name:           "Test User",
		Email:          uuid.New().String() + "@example.com",
		Role:           role,
		VerifiedStatus: models.UserVerifiedNo,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func actorWithRole(role models.UserRole) *models.UserInfo {
	return &models.UserInfo{
		CognitoID:      uuid.New().String(),
		Role:           role,
		VerifiedStatus: models.UserVerifiedYes,
	}
}

func TestRoleMatrices(t *testing.T) {
	// SUPERADMIN can hand out and modify anything
	assert.True(t, models.CanAssignRole(models.RoleSuperAdmin, models.RoleSuperAdmin))
	assert.True(t, models.CanModifyUserRole(models.RoleSuperAdmin, models.RoleSuperAdmin))

	// ADMIN is limited to USER and ADMIN
	assert.True(t, models.CanAssignRole(models.RoleAdmin, models.RoleAdmin))
	assert.False(t, models.CanAssignRole(models.RoleAdmin, models.RoleSuperAdmin))
	assert.False(t, models.CanModifyUserRole(models.RoleAdmin, models.RoleSuperAdmin))

	// USER has no admin rights at all
	assert.False(t, models.CanAssignRole(models.RoleUser, models.RoleUser))
	assert.False(t, models.RightToVerifyUsers[models.RoleUser])
}

func TestVerifyUser(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleUser)

	err := verifyUser(db, target.CognitoID, models.UserVerifiedYes, actorWithRole(models.RoleAdmin))
	require.NoError(t, err)

	var after models.User
	require.NoError(t, db.First(&after, "cognito_id = ?", target.CognitoID).Error)
	assert.Equal(t, models.UserVerifiedYes, after.VerifiedStatus)
}

func TestVerifyUserRequiresSufficientRole(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleUser)

	err := verifyUser(db, target.CognitoID, models.UserVerifiedYes, actorWithRole(models.RoleUser))
	assert.True(t, errors.Is(err, errRoleNotSufficient))

	var after models.User
	require.NoError(t, db.First(&after, "cognito_id = ?", target.CognitoID).Error)
	assert.Equal(t, models.UserVerifiedNo, after.VerifiedStatus)
}

func TestVerifyUserUnknownTarget(t *testing.T) {
	db := openTestDB(t)

	err := verifyUser(db, uuid.New().String(), models.UserVerifiedYes, actorWithRole(models.RoleAdmin))
	assert.True(t, errors.Is(err, errUserNotFound))
}

func TestChangeUserRolePromotesUser(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleUser)

	err := changeUserRole(db, target.CognitoID, models.RoleAdmin, actorWithRole(models.RoleAdmin))
	require.NoError(t, err)

	var after models.User
	require.NoError(t, db.First(&after, "cognito_id = ?", target.CognitoID).Error)
	assert.Equal(t, models.RoleAdmin, after.Role)
}

func TestChangeUserRoleAdminCannotMintSuperadmin(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleUser)

	err := changeUserRole(db, target.CognitoID, models.RoleSuperAdmin, actorWithRole(models.RoleAdmin))
	assert.True(t, errors.Is(err, errCannotAssignRole))
}

func TestChangeUserRoleAdminCannotTouchSuperadmin(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleSuperAdmin)

	err := changeUserRole(db, target.CognitoID, models.RoleUser, actorWithRole(models.RoleAdmin))
	assert.True(t, errors.Is(err, errCannotModifyTarget))

	var after models.User
	require.NoError(t, db.First(&after, "cognito_id = ?", target.CognitoID).Error)
	assert.Equal(t, models.RoleSuperAdmin, after.Role)
}

func TestChangeUserRoleSuperadminDemotesAdmin(t *testing.T) {
	db := openTestDB(t)
	target := seedUserWithRole(t, db, models.RoleAdmin)

	err := changeUserRole(db, target.CognitoID, models.RoleUser, actorWithRole(models.RoleSuperAdmin))
	require.NoError(t, err)

	var after models.User
	require.NoError(t, db.First(&after, "cognito_id = ?", target.CognitoID).Error)
	assert.Equal(t, models.RoleUser, after.Role)
}

func TestChangeUserRoleUnknownTarget(t *testing.T) {
	db := openTestDB(t)

	err := changeUserRole(db, uuid.New().String(), models.RoleUser, actorWithRole(models.RoleSuperAdmin))
	assert.True(t, errors.Is(err, errUserNotFound))
}
