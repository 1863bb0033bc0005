// Package users provides database operations for user accounts.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByUsername("alice")
package users

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user. The caller is expected to have hashed
// the credentials already. Returns the plaintext API token exactly once;
// only its SHA-256 digest is stored.
func (r *Repository) CreateUser(user *entities.User) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	user.Token = hashToken(token)

	if err := r.db.Create(user).Error; err != nil {
		return "", err
	}

	return token, nil
}

// GetUserByToken retrieves a user by their plaintext API token.
func (r *Repository) GetUserByToken(token string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("token = ? AND is_active = ?", hashToken(token), true).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UsernameExists reports whether a user with the given name exists,
// including soft-deleted accounts so names are never reused.
func (r *Repository) UsernameExists(username string) (bool, error) {
	var count int64
	err := r.db.Unscoped().Model(&entities.User{}).
		Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// UpdateUser saves changes to an existing user.
func (r *Repository) UpdateUser(user *entities.User) error {
	return r.db.Save(user).Error
}

// TouchLastLogin records a successful login timestamp.
func (r *Repository) TouchLastLogin(userID uint) error {
	now := time.Now()
	return r.db.Model(&entities.User{}).Where("id = ?", userID).
		Update("last_login_at", &now).Error
}

// RotateToken replaces the user's API token and returns the new
// plaintext value.
func (r *Repository) RotateToken(userID uint) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	err = r.db.Model(&entities.User{}).Where("id = ?", userID).
		Update("token", hashToken(token)).Error
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetAllUsers retrieves all users ordered by creation time.
func (r *Repository) GetAllUsers() ([]entities.User, error) {
	var users []entities.User
	err := r.db.Order("created_at ASC").Find(&users).Error
	return users, err
}

// DeactivateUser disables an account without deleting its data.
func (r *Repository) DeactivateUser(userID uint) error {
	return r.db.Model(&entities.User{}).Where("id = ?", userID).
		Update("is_active", false).Error
}

// DeleteUser soft-deletes a user.
func (r *Repository) DeleteUser(userID uint) error {
	return r.db.Delete(&entities.User{}, userID).Error
}

// CountUsers returns the total number of active accounts.
func (r *Repository) CountUsers() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
