package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// Broker mediates purchases/sales for a commission. CurrentBalance follows
// the same sign convention as Party: positive = mill owes the broker.
type Broker struct {
	ID             int             `gorm:"primary_key" json:"id"`
	MillId         string          `gorm:"size:36;index;not null" json:"mill_id"`
	Name           string          `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone          string          `gorm:"size:20" json:"phone"`
	CommissionRate decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"commission_rate"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"opening_balance"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBroker struct {
	Name           string          `json:"name" binding:"required"`
	Phone          string          `json:"phone"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (input *NewBroker) validate(ctx context.Context, millId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Broker](ctx, millId, id); err != nil {
			return err
		}
	}
	if err := utils.ValidateUnique[Broker](ctx, millId, "name", input.Name, id); err != nil {
		return err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, utils.CountryCode); err != nil {
			return utils.ValidationError{Message: "invalid phone number"}
		}
	}
	if input.CommissionRate.IsNegative() {
		return utils.ValidationError{Message: "commission rate cannot be negative"}
	}
	return nil
}

func CreateBroker(ctx context.Context, input *NewBroker) (*Broker, error) {

	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(ctx, millId, 0); err != nil {
		return nil, err
	}

	broker := Broker{
		MillId:         millId,
		Name:           input.Name,
		Phone:          input.Phone,
		CommissionRate: input.CommissionRate,
		OpeningBalance: input.OpeningBalance,
		CurrentBalance: input.OpeningBalance,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&broker).Error; err != nil {
		return nil, err
	}
	return &broker, nil
}

func UpdateBroker(ctx context.Context, id int, input *NewBroker) (*Broker, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(ctx, millId, id); err != nil {
		return nil, err
	}

	broker, err := utils.FetchModel[Broker](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(broker).Updates(map[string]interface{}{
		"Name":           input.Name,
		"Phone":          input.Phone,
		"CommissionRate": input.CommissionRate,
	}).Error
	if err != nil {
		return nil, err
	}
	return broker, nil
}

func DeleteBroker(ctx context.Context, id int) (*Broker, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	broker, err := utils.FetchModel[Broker](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	if err = db.WithContext(ctx).Model(&Purchase{}).
		Where("broker_id = ?", broker.ID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		if err = db.WithContext(ctx).Model(&Sale{}).
			Where("broker_id = ?", broker.ID).Count(&count).Error; err != nil {
			return nil, err
		}
	}
	if count > 0 {
		return nil, utils.BusinessRuleError{Message: "broker has linked transactions"}
	}

	if err := db.WithContext(ctx).Delete(broker).Error; err != nil {
		return nil, err
	}
	return broker, nil
}

func GetBroker(ctx context.Context, id int) (*Broker, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[Broker](ctx, millId, id)
}

func GetBrokersAll(ctx context.Context, name *string) ([]*Broker, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	var results []*Broker

	dbCtx := db.WithContext(ctx).Where("mill_id = ?", millId)
	if name != nil && len(*name) > 0 {
		dbCtx = dbCtx.Where("name LIKE ?", "%"+*name+"%")
	}
	err := dbCtx.Order("name").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BrokerCommissionFor computes the commission a transaction owes its broker:
// an explicit amount wins, otherwise rate percent of the transaction total.
func BrokerCommissionFor(broker *Broker, explicit decimal.Decimal, totalAmount decimal.Decimal) decimal.Decimal {
	if !explicit.IsZero() {
		return explicit
	}
	if broker == nil || broker.CommissionRate.IsZero() {
		return decimal.Zero
	}
	return totalAmount.Mul(broker.CommissionRate).Div(decimal.NewFromInt(100)).Round(4)
}

// resolveBrokerCommission looks the broker up and fills an unset commission
// from the broker's rate. No broker means the explicit amount stands as-is.
func resolveBrokerCommission(ctx context.Context, millId string, brokerId *int, explicit, totalAmount decimal.Decimal) (decimal.Decimal, error) {
	if brokerId == nil {
		return explicit, nil
	}
	broker, err := utils.FetchModel[Broker](ctx, millId, *brokerId)
	if err != nil {
		return decimal.Zero, err
	}
	return BrokerCommissionFor(broker, explicit, totalAmount), nil
}
