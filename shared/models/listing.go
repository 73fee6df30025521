package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus is the visibility tier of a listing.
type ListingStatus string

const (
	// ListingPublic listings are discoverable through search.
	ListingPublic ListingStatus = "PUBLIC"
	// ListingPrivate listings are reachable by direct link only.
	ListingPrivate ListingStatus = "PRIVATE"
	// ListingHidden listings are visible to the owner only.
	ListingHidden ListingStatus = "HIDDEN"
)

// Listing represents a rentable property. The number of linked tenants
// must never exceed MaxTenants; the count is always derived from
// listing_tenants rows, never cached on the listing itself.
type Listing struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	UserID        string        `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Title         string        `json:"title" gorm:"not null"`
	Description   string        `json:"description" gorm:"not null"`
	MaxTenants    int           `json:"max_tenants" gorm:"not null"`
	MonthlyPrice  int           `json:"monthly_price" gorm:"not null"`
	Area          int           `json:"area"`
	Rooms         int           `json:"rooms"`
	Street        string        `json:"street"`
	Zip           string        `json:"zip"`
	City          string        `json:"city"`
	Country       string        `json:"country"`
	Longitude     float64       `json:"longitude"`
	Latitude      float64       `json:"latitude"`
	ListingStatus ListingStatus `json:"listing_status" gorm:"type:varchar(20);default:'HIDDEN'"`
	CreatedAt     time.Time     `json:"created_at"`

	Creator      *User           `json:"creator,omitempty" gorm:"foreignKey:UserID;references:CognitoID"`
	Tenants      []ListingTenant `json:"tenants,omitempty" gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
	Reservations []Reservation   `json:"reservations,omitempty" gorm:"foreignKey:ListingID;constraint:OnDelete:CASCADE"`
}

func (Listing) TableName() string {
	return "listings"
}

// Tenant represents a person occupying a listing. A tenant may come from
// an accepted reservation or be added directly by the owner, so it does
// not have to correspond to a registered user.
type Tenant struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Name  string    `json:"name" gorm:"not null"`
	Bio   string    `json:"bio" gorm:"not null"`
	Image string    `json:"image"`

	Socials []TenantSocial `json:"socials,omitempty" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// SocialNetwork identifies a tenant's social media profile kind.
type SocialNetwork string

const (
	SocialFacebook  SocialNetwork = "facebook"
	SocialInstagram SocialNetwork = "instagram"
	SocialX         SocialNetwork = "x"
)

// TenantSocial is a social media link attached to a tenant.
type TenantSocial struct {
	ID       uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	TenantID uuid.UUID     `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Network  SocialNetwork `json:"network" gorm:"type:varchar(20);not null"`
	URL      string        `json:"url" gorm:"not null"`
}

func (TenantSocial) TableName() string {
	return "tenant_socials"
}

// ListingTenant links a tenant to the listing they occupy. Each tenant is
// linked to exactly one listing; rows cascade away with the listing.
type ListingTenant struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ListingID uuid.UUID `json:"listing_id" gorm:"type:uuid;not null;index"`
	TenantID  uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null;index"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
}

func (ListingTenant) TableName() string {
	return "listing_tenants"
}
