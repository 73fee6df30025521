package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/flatmates/flatmates-backend/shared/models"
	"github.com/flatmates/flatmates-backend/shared/utils"
)

// AuthMiddleware handles JWT token validation. Role and verified status
// are re-derived from the token (or the users table) on every request;
// nothing supplied in the request body is trusted for authorization.
type AuthMiddleware struct {
	cognitoClient *cognitoidentityprovider.CognitoIdentityProvider
	userPoolID    string
	db            *gorm.DB
	jwksValidator *utils.JWKSValidator
}

// CognitoClaims represents Cognito JWT claims
type CognitoClaims struct {
	Sub            string `json:"sub"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	TokenUse       string `json:"token_use"`
	CustomRole     string `json:"custom:role"`
	CustomVerified string `json:"custom:verified_status"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(region, userPoolID string, db *gorm.DB) (*AuthMiddleware, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	return &AuthMiddleware{
		cognitoClient: cognitoidentityprovider.New(sess),
		userPoolID:    userPoolID,
		db:            db,
		jwksValidator: utils.NewJWKSValidator(region, userPoolID),
	}, nil
}

// RequireAuth middleware validates JWT tokens and loads the principal
// into the request context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := am.parseToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("access_token", tokenString)
		c.Set("user_id", claims.Sub)
		c.Set("name", claims.Name)
		c.Set("email", claims.Email)
		c.Set("role", claims.CustomRole)
		c.Set("verified_status", claims.CustomVerified)

		c.Next()
	}
}

// RequireAdmin allows ADMIN and SUPERADMIN principals only.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User role not found in context"})
			c.Abort()
			return
		}

		userRole := models.UserRole(role.(string))
		if userRole != models.RoleAdmin && userRole != models.RoleSuperAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error":     "Insufficient permissions",
				"user_role": role,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireVerified blocks unverified users from mutating operations that
// require a vetted identity (creating listings, booking).
func (am *AuthMiddleware) RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.GetString("verified_status")
		if models.UserVerified(status) != models.UserVerifiedYes {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Account must be verified to perform this action",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// getCacheKey generates a cache key for the token
func getCacheKey(tokenString string) string {
	hash := sha256.Sum256([]byte(tokenString))
	return "token:claims:" + hex.EncodeToString(hash[:])
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return authHeader
}

// parseToken validates the token signature via JWKS and extracts the
// principal's claims, with a Redis cache in front of the parse.
func (am *AuthMiddleware) parseToken(tokenString string) (*CognitoClaims, error) {
	cacheKey := getCacheKey(tokenString)
	if cachedData, err := utils.CacheGet(cacheKey); err == nil {
		var claims CognitoClaims
		if err := json.Unmarshal([]byte(cachedData), &claims); err == nil {
			return &claims, nil
		}
	}

	token, err := am.jwksValidator.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims format")
	}

	claims := &CognitoClaims{
		Sub:            getClaimString(mapClaims, "sub"),
		Email:          getClaimString(mapClaims, "email"),
		Name:           getClaimString(mapClaims, "name"),
		TokenUse:       getClaimString(mapClaims, "token_use"),
		CustomRole:     getClaimString(mapClaims, "custom:role"),
		CustomVerified: getClaimString(mapClaims, "custom:verified_status"),
	}

	// ID tokens carry the custom attributes, access tokens don't
	if claims.TokenUse != "access" && claims.TokenUse != "id" {
		return nil, fmt.Errorf("invalid token use: expected 'access' or 'id', got '%s'", claims.TokenUse)
	}

	// Access tokens fall back to the users table for role/verification
	if claims.CustomRole == "" || claims.CustomVerified == "" {
		var user models.User
		if err := am.db.Where("cognito_id = ?", claims.Sub).First(&user).Error; err != nil {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		claims.CustomRole = string(user.Role)
		claims.CustomVerified = string(user.VerifiedStatus)
		if claims.Name == "" {
			claims.Name = user.Name
		}
		if claims.Email == "" {
			claims.Email = user.Email
		}
	}

	// Cache the parsed claims for an hour
	if cacheData, err := json.Marshal(claims); err == nil {
		_ = utils.CacheSet(cacheKey, string(cacheData), 1*time.Hour)
	}

	return claims, nil
}

// getClaimString safely extracts a string claim from JWT claims
func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetUserFromContext extracts user information from the Gin context
func GetUserFromContext(c *gin.Context) (cognitoID, name, email, role string) {
	cognitoID = c.GetString("user_id")
	name = c.GetString("name")
	email = c.GetString("email")
	role = c.GetString("role")
	return
}

// GetUserInfoFromContext extracts the full principal from the Gin context
func GetUserInfoFromContext(c *gin.Context) (*models.UserInfo, error) {
	cognitoID := c.GetString("user_id")
	if cognitoID == "" {
		return nil, fmt.Errorf("user_id not found in context")
	}

	return &models.UserInfo{
		CognitoID:      cognitoID,
		Name:           c.GetString("name"),
		Email:          c.GetString("email"),
		Role:           models.UserRole(c.GetString("role")),
		VerifiedStatus: models.UserVerified(c.GetString("verified_status")),
	}, nil
}
