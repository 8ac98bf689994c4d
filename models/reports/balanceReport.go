package reports

import (
	"context"
	"errors"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// PartyBalanceRow summarizes one party's position: balance sign follows the
// ledger convention, positive = mill owes the party.
type PartyBalanceRow struct {
	PartyId         int              `json:"party_id"`
	Name            string           `json:"name"`
	Type            models.PartyType `json:"type"`
	OpeningBalance  decimal.Decimal  `json:"opening_balance"`
	CurrentBalance  decimal.Decimal  `json:"current_balance"`
	PurchasePending decimal.Decimal  `json:"purchase_pending"`
	SalePending     decimal.Decimal  `json:"sale_pending"`
}

func GetPartyBalanceSummary(ctx context.Context) ([]*PartyBalanceRow, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()

	var rows []*PartyBalanceRow
	err := db.WithContext(ctx).Model(&models.Party{}).
		Select(`parties.id AS party_id, parties.name, parties.type,
			parties.opening_balance, parties.current_balance,
			COALESCE((SELECT SUM(pending_amount) FROM purchases WHERE purchases.mill_id = parties.mill_id AND purchases.party_id = parties.id), 0) AS purchase_pending,
			COALESCE((SELECT SUM(pending_amount) FROM sales WHERE sales.mill_id = parties.mill_id AND sales.party_id = parties.id), 0) AS sale_pending`).
		Where("parties.mill_id = ?", millId).
		Order("parties.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BrokerCommissionRow aggregates commission accrued to a broker across both
// transaction sides.
type BrokerCommissionRow struct {
	BrokerId           int             `json:"broker_id"`
	Name               string          `json:"name"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	PurchaseCommission decimal.Decimal `json:"purchase_commission"`
	SaleCommission     decimal.Decimal `json:"sale_commission"`
	CurrentBalance     decimal.Decimal `json:"current_balance"`
}

func GetBrokerCommissionSummary(ctx context.Context) ([]*BrokerCommissionRow, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()

	var rows []*BrokerCommissionRow
	err := db.WithContext(ctx).Model(&models.Broker{}).
		Select(`brokers.id AS broker_id, brokers.name, brokers.commission_rate, brokers.current_balance,
			COALESCE((SELECT SUM(commission) FROM purchases WHERE purchases.mill_id = brokers.mill_id AND purchases.broker_id = brokers.id), 0) AS purchase_commission,
			COALESCE((SELECT SUM(commission) FROM sales WHERE sales.mill_id = brokers.mill_id AND sales.broker_id = brokers.id), 0) AS sale_commission`).
		Where("brokers.mill_id = ?", millId).
		Order("brokers.name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
