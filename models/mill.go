package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"gorm.io/gorm"
)

// Mill is the tenant. Every core row carries its ID.
type Mill struct {
	ID        uuid.UUID      `gorm:"type:char(36);primary_key" json:"id"`
	Name      string         `gorm:"size:100;not null" json:"name" binding:"required"`
	Address   string         `gorm:"type:text" json:"address"`
	Phone     string         `gorm:"size:20" json:"phone"`
	GstNumber string         `gorm:"size:20" json:"gst_number"`
	Timezone  string         `gorm:"size:50;default:'Asia/Kolkata'" json:"timezone"`
	Settings  []*MillSetting `gorm:"foreignKey:MillId" json:"settings"`
	IsActive  *bool          `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// MillSetting is one (key, value) configuration row. Keys are either members
// of the enumerated option set or caller-defined keys under the "custom:"
// namespace, validated at write time.
type MillSetting struct {
	ID        int       `gorm:"primary_key" json:"id"`
	MillId    string    `gorm:"size:36;not null;index:uniq_mill_setting,unique" json:"mill_id"`
	Key       string    `gorm:"size:100;not null;index:uniq_mill_setting,unique" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	SettingPurchasePrefix       = "purchase_invoice_prefix"
	SettingSalePrefix           = "sale_invoice_prefix"
	SettingTransferPrefix       = "transfer_number_prefix"
	SettingLowStockAlertEnabled = "low_stock_alert_enabled"
	SettingCustomPrefix         = "custom:"

	maxCustomSettings = 20
)

var settingKeys = map[string]bool{
	SettingPurchasePrefix:       true,
	SettingSalePrefix:           true,
	SettingTransferPrefix:       true,
	SettingLowStockAlertEnabled: true,
}

type NewMill struct {
	Name      string `json:"name" binding:"required"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	GstNumber string `json:"gst_number"`
	Timezone  string `json:"timezone"`
}

func (m *Mill) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// CreateMill is a platform-admin operation; the caller's context must carry
// the admin flag or tenant scoping will reject the unscoped insert.
func CreateMill(ctx context.Context, input *NewMill) (*Mill, error) {
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.ValidationError{Message: "invalid phone number"}
		}
	}

	mill := Mill{
		Name:      input.Name,
		Address:   input.Address,
		Phone:     input.Phone,
		GstNumber: input.GstNumber,
	}
	if input.Timezone != "" {
		mill.Timezone = input.Timezone
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&mill).Error; err != nil {
		return nil, err
	}
	return &mill, nil
}

func GetMill(ctx context.Context, millId string) (*Mill, error) {
	db := config.GetDB()
	var mill Mill
	err := db.WithContext(ctx).Preload("Settings").Where("id = ?", millId).First(&mill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError{Resource: "mill"}
		}
		return nil, err
	}
	return &mill, nil
}

func UpdateMill(ctx context.Context, millId string, input *NewMill) (*Mill, error) {
	mill, err := GetMill(ctx, millId)
	if err != nil {
		return nil, err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return nil, utils.ValidationError{Message: "invalid phone number"}
		}
	}

	// An empty timezone means "not provided", same as on create.
	timezone := mill.Timezone
	if input.Timezone != "" {
		timezone = input.Timezone
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(mill).Updates(map[string]interface{}{
		"Name":      input.Name,
		"Address":   input.Address,
		"Phone":     input.Phone,
		"GstNumber": input.GstNumber,
		"Timezone":  timezone,
	}).Error
	if err != nil {
		return nil, err
	}
	return mill, nil
}

// UpsertMillSetting validates the key against the enumerated option set, or
// accepts it under the bounded "custom:" namespace.
func UpsertMillSetting(ctx context.Context, millId string, key string, value string) (*MillSetting, error) {
	if !settingKeys[key] {
		if len(key) <= len(SettingCustomPrefix) || key[:len(SettingCustomPrefix)] != SettingCustomPrefix {
			return nil, utils.ValidationError{Message: "unknown setting key: " + key}
		}
		db := config.GetDB()
		var customCount int64
		if err := db.WithContext(ctx).Model(&MillSetting{}).
			Where("mill_id = ? AND `key` LIKE ?", millId, SettingCustomPrefix+"%").
			Count(&customCount).Error; err != nil {
			return nil, err
		}
		if customCount >= maxCustomSettings {
			return nil, utils.BusinessRuleError{Message: "custom setting limit reached"}
		}
	}

	db := config.GetDB()
	setting := MillSetting{MillId: millId, Key: key}
	if err := db.WithContext(ctx).
		Where("mill_id = ? AND `key` = ?", millId, key).
		FirstOrCreate(&setting).Error; err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&setting).Update("Value", value).Error; err != nil {
		return nil, err
	}
	setting.Value = value
	return &setting, nil
}

// GetMillSetting returns the stored value or def when the key is absent.
func GetMillSetting(ctx context.Context, millId string, key string, def string) string {
	db := config.GetDB()
	var setting MillSetting
	err := db.WithContext(ctx).
		Where("mill_id = ? AND `key` = ?", millId, key).
		First(&setting).Error
	if err != nil {
		return def
	}
	return setting.Value
}

func GetMillsAll(ctx context.Context, name *string) ([]*Mill, error) {
	db := config.GetDB()
	var results []*Mill

	dbCtx := db.WithContext(ctx)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
