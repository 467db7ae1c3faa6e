package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/eventbook/internal/hash"
	"github.com/Skotchmaster/eventbook/internal/models"
)

func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}

// FindByEmail returns nil, nil when no user has this email.
func (r *GormRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.conn(ctx).Where("normalized_email = ?", NormalizeEmail(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns nil, nil for unknown or malformed ids.
func (r *GormRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil
	}

	var user models.User
	if err := r.conn(ctx).Where("id = ?", uid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

func (r *GormRepo) Create(ctx context.Context, user *models.User, password string) (CreateResult, error) {
	if errs := r.Policy.Validate(password); len(errs) > 0 {
		return CreateResult{Errors: errs}, nil
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return CreateResult{}, fmt.Errorf("hash password: %w", err)
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.NormalizedEmail = NormalizeEmail(user.Email)
	user.PasswordHash = pwHash
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	// savepoint keeps an enclosing transaction usable for emailTaken
	err = r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || r.emailTaken(ctx, user.Email) {
			return CreateResult{Errors: []PolicyError{{
				Code:        "DuplicateEmail",
				Description: fmt.Sprintf("Email '%s' is already taken.", user.Email),
			}}}, nil
		}
		return CreateResult{}, fmt.Errorf("create user: %w", err)
	}

	return CreateResult{Succeeded: true}, nil
}

// emailTaken covers drivers whose unique violations gorm cannot translate (lib/pq).
func (r *GormRepo) emailTaken(ctx context.Context, email string) bool {
	u, err := r.FindByEmail(ctx, email)
	return err == nil && u != nil
}

func (r *GormRepo) CheckPassword(ctx context.Context, user *models.User, password string) (bool, error) {
	if user == nil {
		return false, nil
	}
	return hash.CheckPassword(user.PasswordHash, password), nil
}

func (r *GormRepo) AddClaim(ctx context.Context, user *models.User, claim models.Claim) error {
	uc := models.UserClaim{
		UserID:     user.ID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
	if err := r.conn(ctx).Create(&uc).Error; err != nil {
		return fmt.Errorf("add claim: %w", err)
	}
	return nil
}

// GetClaims lists the user's claims in insertion order.
func (r *GormRepo) GetClaims(ctx context.Context, user *models.User) ([]models.Claim, error) {
	var rows []models.UserClaim
	if err := r.conn(ctx).Where("user_id = ?", user.ID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get claims: %w", err)
	}

	claims := make([]models.Claim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, models.Claim{Type: row.ClaimType, Value: row.ClaimValue})
	}
	return claims, nil
}
