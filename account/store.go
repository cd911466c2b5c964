package account

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gobeaver/beaver-signin/database"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("account not found")
	// ErrConflict is returned when a write hits a uniqueness constraint,
	// typically because a concurrent sign-in won the race.
	ErrConflict = errors.New("account already exists")
)

// Store persists accounts and their provider links.
type Store interface {
	// FindByEmail returns the account with email and its links, or ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// UpdateLink saves token and profile changes of an existing link.
	UpdateLink(ctx context.Context, link *LinkedAccount) error
	// CreateLink adds a provider link to an existing account.
	CreateLink(ctx context.Context, link *LinkedAccount) error
	// CreateAccount creates acct and link atomically.
	CreateAccount(ctx context.Context, acct *Account, link *LinkedAccount) error
}

// GormStore is a Store backed by GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the account tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Account{}, &LinkedAccount{}); err != nil {
		return fmt.Errorf("failed to migrate account tables: %w", err)
	}
	return nil
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	var acct Account
	err := s.db.WithContext(ctx).Preload("Links").Where("email = ?", email).First(&acct).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return &acct, nil
}

func (s *GormStore) UpdateLink(ctx context.Context, link *LinkedAccount) error {
	result := s.db.WithContext(ctx).Model(link).
		Select("ProviderID", "Email", "DisplayName", "AvatarURL", "AccessToken", "RefreshToken", "TokenExpiry").
		Updates(link)
	if result.Error != nil {
		return classify("update link", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update link: %w", ErrNotFound)
	}
	return nil
}

func (s *GormStore) CreateLink(ctx context.Context, link *LinkedAccount) error {
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		return classify("create link", err)
	}
	return nil
}

func (s *GormStore) CreateAccount(ctx context.Context, acct *Account, link *LinkedAccount) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Links").Create(acct).Error; err != nil {
			return classify("create account", err)
		}
		link.AccountID = acct.ID
		if err := tx.Create(link).Error; err != nil {
			return classify("create link", err)
		}
		acct.Links = []LinkedAccount{*link}
		return nil
	})
}

func classify(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrConflict, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
