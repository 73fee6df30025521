package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/middleware"
	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

var (
	cognitoClient  *cognitoidentityprovider.CognitoIdentityProvider
	circuitBreaker *utils.CircuitBreaker
)

func init() {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
	})
	if err != nil {
		panic("Failed to create AWS session: " + err.Error())
	}
	cognitoClient = cognitoidentityprovider.New(sess)

	// Circuit breaker for Cognito calls (max 5 failures, 30 second reset)
	circuitBreaker = utils.NewCircuitBreaker(5, 30*time.Second)
}

// generateSecretHash creates a secret hash for Cognito authentication
func generateSecretHash(username string) string {
	clientSecret := os.Getenv("COGNITO_CLIENT_SECRET")
	clientId := os.Getenv("COGNITO_CLIENT_ID")

	if clientSecret == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientId))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// LoginRequest represents the login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest represents the registration request. Every account
// starts as an unverified USER; roles and verification are granted by
// admins afterwards.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// handleLogin handles user login with circuit breaker
func handleLogin(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		authParams := map[string]*string{
			"USERNAME": aws.String(req.Email),
			"PASSWORD": aws.String(req.Password),
		}

		if secretHash := generateSecretHash(req.Email); secretHash != "" {
			authParams["SECRET_HASH"] = aws.String(secretHash)
		}

		authInput := &cognitoidentityprovider.InitiateAuthInput{
			AuthFlow:       aws.String("USER_PASSWORD_AUTH"),
			ClientId:       aws.String(os.Getenv("COGNITO_CLIENT_ID")),
			AuthParameters: authParams,
		}

		var authResult *cognitoidentityprovider.InitiateAuthOutput
		err := circuitBreaker.Call(func() error {
			var cognitoErr error
			authResult, cognitoErr = cognitoClient.InitiateAuth(authInput)
			return cognitoErr
		})

		if err != nil {
			if err == utils.ErrCircuitOpen {
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
			} else {
				utils.UnauthorizedResponse(c, "Invalid credentials")
			}
			return
		}

		accessToken := *authResult.AuthenticationResult.AccessToken
		idToken := *authResult.AuthenticationResult.IdToken

		cognitoID, err := extractCognitoIDFromToken(idToken)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to extract user ID from token")
			return
		}

		// The users table is the source of truth for role and
		// verification; the token attributes can lag an admin change
		var user models.User
		if err := db.Where("cognito_id = ?", cognitoID).First(&user).Error; err != nil {
			utils.InternalServerErrorResponse(c, "Failed to load user profile")
			return
		}

		userProfile := models.UserProfile{
			CognitoID:      user.CognitoID,
			Name:           user.Name,
			Email:          user.Email,
			Role:           string(user.Role),
			VerifiedStatus: string(user.VerifiedStatus),
		}

		sessionTTL := time.Duration(*authResult.AuthenticationResult.ExpiresIn) * time.Second
		tokenSession, err := utils.CreateTokenSession(accessToken, userProfile, sessionTTL)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to create session")
			return
		}

		go func() {
			now := time.Now()
			db.Model(&models.User{}).Where("cognito_id = ?", cognitoID).Update("last_login_at", now)
		}()

		response := map[string]interface{}{
			"access_token":  accessToken,
			"id_token":      idToken,
			"refresh_token": *authResult.AuthenticationResult.RefreshToken,
			"expires_in":    *authResult.AuthenticationResult.ExpiresIn,
			"token_type":    "Bearer",
			"user_info":     userProfile,
			"session_id":    tokenSession.SessionID,
		}

		utils.OKResponse(c, "Login successful", response)
	}
}

// handleRegister handles user registration. The Cognito sign-up and the
// users row are kept consistent with a compensating delete when the
// database insert fails.
func handleRegister(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		userAttributes := []*cognitoidentityprovider.AttributeType{
			{
				Name:  aws.String("email"),
				Value: aws.String(req.Email),
			},
			{
				Name:  aws.String("name"),
				Value: aws.String(req.Name),
			},
			{
				Name:  aws.String("custom:role"),
				Value: aws.String(string(models.RoleUser)),
			},
			{
				Name:  aws.String("custom:verified_status"),
				Value: aws.String(string(models.UserVerifiedNo)),
			},
		}

		signUpInput := &cognitoidentityprovider.SignUpInput{
			ClientId:       aws.String(os.Getenv("COGNITO_CLIENT_ID")),
			Username:       aws.String(req.Email),
			Password:       aws.String(req.Password),
			UserAttributes: userAttributes,
		}

		if secretHash := generateSecretHash(req.Email); secretHash != "" {
			signUpInput.SecretHash = aws.String(secretHash)
		}

		var signUpResult *cognitoidentityprovider.SignUpOutput
		cognitoErr := circuitBreaker.Call(func() error {
			var err error
			signUpResult, err = cognitoClient.SignUp(signUpInput)
			return err
		})

		if cognitoErr != nil {
			if cognitoErr == utils.ErrCircuitOpen {
				utils.ServiceUnavailableResponse(c, "Authentication service temporarily unavailable")
			} else {
				utils.BadRequestResponse(c, "Failed to register user: "+cognitoErr.Error())
			}
			return
		}

		user := models.User{
			CognitoID:      *signUpResult.UserSub,
			Name:           req.Name,
			Email:          req.Email,
			Role:           models.RoleUser,
			VerifiedStatus: models.UserVerifiedNo,
			CreatedAt:      time.Now(),
		}

		if err := db.Create(&user).Error; err != nil {
			compensateErr := circuitBreaker.Call(func() error {
				_, deleteErr := cognitoClient.AdminDeleteUser(&cognitoidentityprovider.AdminDeleteUserInput{
					UserPoolId: aws.String(os.Getenv("COGNITO_USER_POOL_ID")),
					Username:   aws.String(req.Email),
				})
				return deleteErr
			})

			if compensateErr != nil {
				logrus.WithFields(logrus.Fields{
					"email": req.Email,
					"error": compensateErr,
				}).Warn("Failed to compensate orphaned Cognito user")
			}

			utils.InternalServerErrorResponse(c, "Failed to complete registration")
			return
		}

		utils.CreatedResponse(c, "User registered successfully", map[string]interface{}{
			"cognito_id": user.CognitoID,
			"email":      req.Email,
			"role":       string(user.Role),
			"message":    "Please confirm your email before logging in.",
		})
	}
}

// handleRefreshToken handles token refresh
func handleRefreshToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		authInput := &cognitoidentityprovider.InitiateAuthInput{
			AuthFlow: aws.String("REFRESH_TOKEN_AUTH"),
			ClientId: aws.String(os.Getenv("COGNITO_CLIENT_ID")),
			AuthParameters: map[string]*string{
				"REFRESH_TOKEN": aws.String(req.RefreshToken),
			},
		}

		authResult, err := cognitoClient.InitiateAuth(authInput)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid refresh token")
			return
		}

		response := map[string]interface{}{
			"access_token": *authResult.AuthenticationResult.AccessToken,
			"expires_in":   *authResult.AuthenticationResult.ExpiresIn,
			"token_type":   "Bearer",
		}

		utils.OKResponse(c, "Token refreshed successfully", response)
	}
}

// handleConfirmEmail handles manual email confirmation (admin only)
func handleConfirmEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
		}

		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		err := circuitBreaker.Call(func() error {
			_, confirmErr := cognitoClient.AdminConfirmSignUp(&cognitoidentityprovider.AdminConfirmSignUpInput{
				UserPoolId: aws.String(os.Getenv("COGNITO_USER_POOL_ID")),
				Username:   aws.String(req.Email),
			})
			return confirmErr
		})

		if err != nil {
			utils.BadRequestResponse(c, "Failed to confirm email: "+err.Error())
			return
		}

		utils.OKResponse(c, "Email confirmed successfully", map[string]interface{}{
			"email":   req.Email,
			"message": "User can now login",
		})
	}
}

// handleLogout handles user logout and session revocation
func handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, exists := c.Get("access_token")
		if !exists {
			utils.UnauthorizedResponse(c, "No active session found")
			return
		}

		if err := utils.RevokeTokenSession(accessToken.(string)); err != nil {
			utils.InternalServerErrorResponse(c, "Failed to revoke session")
			return
		}

		utils.OKResponse(c, "Logout successful", nil)
	}
}

// handleMe returns the caller's profile from the users table
func handleMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := middleware.GetUserInfoFromContext(c)
		if err != nil {
			utils.UnauthorizedResponse(c, "Authentication required")
			return
		}

		var user models.User
		if err := db.Where("cognito_id = ?", principal.CognitoID).First(&user).Error; err != nil {
			utils.NotFoundResponse(c, "User not found")
			return
		}

		utils.OKResponse(c, "Profile retrieved successfully", user)
	}
}

// extractCognitoIDFromToken extracts the Cognito ID from a JWT token
func extractCognitoIDFromToken(tokenString string) (string, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return "", jwt.ErrTokenInvalidSubject
	}

	return sub, nil
}
