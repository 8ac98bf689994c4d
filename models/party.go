package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// Party is a counterparty of the mill (paddy supplier, rice buyer, or both).
// CurrentBalance is signed: positive = mill owes the party.
type Party struct {
	ID             int             `gorm:"primary_key" json:"id"`
	MillId         string          `gorm:"size:36;index;not null" json:"mill_id"`
	Name           string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Type           PartyType       `gorm:"type:enum('SUPPLIER','CUSTOMER','BOTH');not null;default:'BOTH'" json:"type"`
	Phone          string          `gorm:"size:20" json:"phone"`
	Email          string          `gorm:"size:100" json:"email"`
	Address        string          `gorm:"type:text" json:"address"`
	GstNumber      string          `gorm:"size:20" json:"gst_number"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewParty struct {
	Name           string          `json:"name" binding:"required"`
	Type           PartyType       `json:"type"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Address        string          `json:"address"`
	GstNumber      string          `json:"gst_number"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewParty) validate(ctx context.Context, millId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Party](ctx, millId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Party](ctx, millId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Type != "" && !input.Type.Valid() {
		return utils.ValidationError{Message: "invalid party type"}
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.ValidationError{Message: "invalid phone number"}
		}
	}
	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return utils.ValidationError{Message: "invalid email"}
	}
	return nil
}

func CreateParty(ctx context.Context, input *NewParty) (*Party, error) {

	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(ctx, millId, 0); err != nil {
		return nil, err
	}

	partyType := input.Type
	if partyType == "" {
		partyType = PartyTypeBoth
	}

	party := Party{
		MillId:         millId,
		Name:           input.Name,
		Type:           partyType,
		Phone:          input.Phone,
		Email:          input.Email,
		Address:        input.Address,
		GstNumber:      input.GstNumber,
		OpeningBalance: input.OpeningBalance,
		CurrentBalance: input.OpeningBalance,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&party).Error; err != nil {
		return nil, err
	}
	return &party, nil
}

func UpdateParty(ctx context.Context, id int, input *NewParty) (*Party, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(ctx, millId, id); err != nil {
		return nil, err
	}

	party, err := utils.FetchModel[Party](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	// An omitted type keeps the current one; empty never means "reset to BOTH"
	// on update.
	partyType := party.Type
	if input.Type != "" {
		partyType = input.Type
	}

	// Opening balance is immutable after creation; balances only move through
	// ledger entries.
	db := config.GetDB()
	err = db.WithContext(ctx).Model(party).Updates(map[string]interface{}{
		"Name":      input.Name,
		"Type":      partyType,
		"Phone":     input.Phone,
		"Email":     input.Email,
		"Address":   input.Address,
		"GstNumber": input.GstNumber,
	}).Error
	if err != nil {
		return nil, err
	}
	return party, nil
}

func DeleteParty(ctx context.Context, id int) (*Party, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	party, err := utils.FetchModel[Party](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()

	// Do not delete if referenced by transactions.
	var count int64
	if err = db.WithContext(ctx).Model(&Purchase{}).
		Where("party_id = ?", party.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		if err = db.WithContext(ctx).Model(&Sale{}).
			Where("party_id = ?", party.ID).Count(&count).Error; err != nil {
			return nil, err
		}
	}
	if count > 0 {
		return nil, utils.BusinessRuleError{Message: "party has linked transactions"}
	}

	if err := db.WithContext(ctx).Delete(party).Error; err != nil {
		return nil, err
	}
	return party, nil
}

func GetParty(ctx context.Context, id int) (*Party, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[Party](ctx, millId, id)
}

func GetPartiesAll(ctx context.Context, name *string, partyType *PartyType) ([]*Party, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	var results []*Party

	dbCtx := db.WithContext(ctx).Where("mill_id = ?", millId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	if partyType != nil && *partyType != "" {
		dbCtx = dbCtx.Where("type = ?", *partyType)
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
