package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"

	"github.com/kompanion/kompanion/internal/config"
	"github.com/kompanion/kompanion/internal/entities"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrUserInactive     = errors.New("user account is disabled")
	ErrInvalidToken     = errors.New("invalid token")
	ErrAuthRequired     = errors.New("authentication required")
	ErrUsernameRequired = errors.New("username is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters, alphanumeric and underscore/hyphen only")
)

// Service handles authentication and user registration. Accounts use
// kosync's credential scheme (client-side MD5) so the KOReader sync
// plugin can authenticate; dashboard passwords are bcrypt-hashed on top.
type Service struct {
	db     *gorm.DB
	config config.Auth
}

// NewService creates a new authentication service.
func NewService(db *gorm.DB, cfg config.Auth) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// RegisterKosyncUser creates a user from a kosync registration request.
// The password arrives already MD5-hashed by the KOReader plugin; if a
// plaintext value shows up (older clients, tests), it is hashed here.
func (s *Service) RegisterKosyncUser(username, password string) (*entities.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}

	var existing entities.User
	err := s.db.Unscoped().Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordMD5 := password
	if !IsKosyncHash(password) {
		passwordMD5 = KosyncHash(password)
	}

	user := &entities.User{
		Username:    username,
		PasswordMD5: passwordMD5,
		IsActive:    true,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// CreateAdmin creates an administrator with both credential formats so
// the same account works for the dashboard and for sync clients.
func (s *Service) CreateAdmin(username, password string) (*entities.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}

	var existing entities.User
	err := s.db.Unscoped().Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		Username:     username,
		PasswordMD5:  KosyncHash(password),
		PasswordHash: passwordHash,
		IsActive:     true,
		IsAdmin:      true,
	}

	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// AuthenticateKosync validates the X-Auth-User/X-Auth-Key header pair
// the KOReader sync plugin sends with every request.
func (s *Service) AuthenticateKosync(username, key string) (*entities.User, error) {
	user, err := s.findByUsername(username)
	if err != nil {
		return nil, err
	}
	if !CheckKosyncKey(key, user.PasswordMD5) {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

// AuthenticateDashboard validates a plaintext password for web logins.
// Falls back to the kosync MD5 credential for accounts registered
// through the sync API that never set a dashboard password, and
// upgrades those accounts to a bcrypt hash on success.
func (s *Service) AuthenticateDashboard(username, password string) (*entities.User, error) {
	user, err := s.findByUsername(username)
	if err != nil {
		return nil, err
	}

	if user.PasswordHash != "" {
		if err := CheckPassword(password, user.PasswordHash); err != nil {
			return nil, err
		}
	} else {
		if !CheckKosyncKey(KosyncHash(password), user.PasswordMD5) {
			return nil, ErrInvalidPassword
		}
		if hash, err := HashPassword(password, s.config.BcryptCost); err == nil {
			if s.db.Model(user).Update("password_hash", hash).Error == nil {
				user.PasswordHash = hash
			}
		}
	}

	now := time.Now()
	s.db.Model(user).Update("last_login_at", &now)

	return user, nil
}

func (s *Service) findByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return &user, nil
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	err := s.db.First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ValidateToken checks a plaintext Bearer token and returns the user.
func (s *Service) ValidateToken(token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	var user entities.User
	err := s.db.Where("token = ? AND is_active = ?", HashToken(token), true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &user, nil
}

// GenerateToken issues a new API token for a user, replacing any
// existing one. The plaintext token is returned once; only its SHA-256
// digest is stored.
func (s *Service) GenerateToken(userID uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(buf)

	err := s.db.Model(&entities.User{}).Where("id = ?", userID).
		Update("token", HashToken(token)).Error
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// RevokeToken clears a user's API token.
func (s *Service) RevokeToken(userID uint) error {
	return s.db.Model(&entities.User{}).Where("id = ?", userID).
		Update("token", "").Error
}

// ChangePassword updates both credential formats for a user.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}

	if user.PasswordHash != "" {
		if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
			return err
		}
	} else if !CheckKosyncKey(KosyncHash(oldPassword), user.PasswordMD5) {
		return ErrInvalidPassword
	}

	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}

	return s.db.Model(user).Updates(map[string]any{
		"password_hash": newHash,
		"password_md5":  KosyncHash(newPassword),
	}).Error
}

// HasUsers returns true if any users exist in the database.
func (s *Service) HasUsers() (bool, error) {
	var count int64
	err := s.db.Model(&entities.User{}).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

// GetAuthMode returns the current authentication mode.
func (s *Service) GetAuthMode() config.AuthMode {
	return s.config.Mode
}
