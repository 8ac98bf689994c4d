package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"gorm.io/gorm"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	MillId       string    `gorm:"size:36;index;not null" json:"mill_id"`
	Username     string    `gorm:"size:100;not null;index:uniq_user,unique" json:"username" binding:"required"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	Name         string    `gorm:"size:100" json:"name"`
	Role         UserRole  `gorm:"type:enum('ADMIN','OWNER','STAFF');not null;default:'STAFF'" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" binding:"required"`
	Password string   `json:"password" binding:"required,min=8"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func CreateUser(ctx context.Context, millId string, input *NewUser) (*User, error) {
	db := config.GetDB()

	var count int64
	if err := db.WithContext(ctx).Model(&User{}).
		Where("username = ?", input.Username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError{Message: "duplicate username"}
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}

	user := User{
		MillId:       millId,
		Username:     input.Username,
		PasswordHash: string(hash),
		Name:         input.Name,
		Role:         role,
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns (user, signed JWT).
// The user record is cached in redis for session lookups.
func Login(ctx context.Context, input *LoginInput) (*User, string, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", input.Username).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", utils.ValidationError{Message: "invalid credentials"}
		}
		return nil, "", err
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, "", utils.ValidationError{Message: "account disabled"}
	}
	if err := utils.ComparePassword(user.PasswordHash, input.Password); err != nil {
		return nil, "", utils.ValidationError{Message: "invalid credentials"}
	}

	token, err := utils.JwtGenerate(user.ID, string(user.Role), user.MillId)
	if err != nil {
		return nil, "", err
	}

	// Best-effort session cache; login works without redis.
	if cerr := config.SetRedisObject("User:"+user.Username, user, 24*time.Hour); cerr != nil {
		config.LogError(config.GetLogger(), "user.go", "Login", "SetRedisObject", user.Username, cerr)
	}

	return &user, token, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, utils.NotFoundError{Resource: "user"}
	}
	return &user, nil
}
