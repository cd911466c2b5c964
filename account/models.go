package account

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Defaults for accounts created through social sign-up.
const (
	DefaultCountry  = "US"
	DefaultCurrency = "USD"
)

// Account is an application user, unique by lower-cased email.
type Account struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Email       string          `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Username    string          `gorm:"uniqueIndex;not null;size:100" json:"username"`
	DisplayName string          `gorm:"size:255" json:"display_name"`
	AvatarURL   string          `gorm:"size:500" json:"avatar_url,omitempty"`
	Country     string          `gorm:"size:2;not null;default:US" json:"country"`
	Currency    string          `gorm:"size:3;not null;default:USD" json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Links       []LinkedAccount `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE" json:"links,omitempty"`
}

// TableName specifies the table name for GORM
func (Account) TableName() string {
	return "accounts"
}

// BeforeCreate assigns a UUID when none is set.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Link returns the linked account for provider, or nil.
func (a *Account) Link(provider string) *LinkedAccount {
	for i := range a.Links {
		if a.Links[i].Provider == provider {
			return &a.Links[i]
		}
	}
	return nil
}

// LinkedAccount binds an account to one identity provider. An account has
// at most one link per provider. Tokens are stored encrypted.
type LinkedAccount struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AccountID    string     `gorm:"size:36;not null;uniqueIndex:idx_account_provider" json:"account_id"`
	Provider     string     `gorm:"size:32;not null;uniqueIndex:idx_account_provider;index:idx_provider_subject" json:"provider"`
	ProviderID   string     `gorm:"size:191;not null;index:idx_provider_subject" json:"provider_id"`
	Email        string     `gorm:"size:255" json:"email"`
	DisplayName  string     `gorm:"size:255" json:"display_name"`
	AvatarURL    string     `gorm:"size:500" json:"avatar_url,omitempty"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (LinkedAccount) TableName() string {
	return "linked_accounts"
}

// BeforeCreate assigns a UUID when none is set.
func (l *LinkedAccount) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
