package reports

import (
	"context"
	"errors"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// StockSummary is the mill-wide roll-up of all stock buckets.
type StockSummary struct {
	StockTypes      int             `json:"stock_types"`
	Varieties       int             `json:"varieties"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	TotalPurchased  decimal.Decimal `json:"total_purchased"`
	TotalSold       decimal.Decimal `json:"total_sold"`
	LowStockCount   int             `json:"low_stock_count"`
	ByType          []*StockTypeRow `json:"by_type"`
}

type StockTypeRow struct {
	StockType       models.StockType `json:"stock_type"`
	Varieties       int              `json:"varieties"`
	CurrentQuantity decimal.Decimal  `json:"current_quantity"`
	TotalPurchased  decimal.Decimal  `json:"total_purchased"`
	TotalSold       decimal.Decimal  `json:"total_sold"`
}

func GetStockSummary(ctx context.Context) (*StockSummary, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()

	var rows []*StockTypeRow
	err := db.WithContext(ctx).Model(&models.StockRecord{}).
		Select("stock_type, COUNT(*) AS varieties, SUM(current_quantity) AS current_quantity, SUM(total_purchased) AS total_purchased, SUM(total_sold) AS total_sold").
		Where("mill_id = ?", millId).
		Group("stock_type").
		Order("stock_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var lowStockCount int64
	err = db.WithContext(ctx).Model(&models.StockRecord{}).
		Where("mill_id = ? AND low_stock_threshold > 0 AND current_quantity <= low_stock_threshold", millId).
		Count(&lowStockCount).Error
	if err != nil {
		return nil, err
	}

	summary := StockSummary{
		StockTypes:    len(rows),
		LowStockCount: int(lowStockCount),
		ByType:        rows,
	}
	for _, row := range rows {
		summary.Varieties += row.Varieties
		summary.CurrentQuantity = summary.CurrentQuantity.Add(row.CurrentQuantity)
		summary.TotalPurchased = summary.TotalPurchased.Add(row.TotalPurchased)
		summary.TotalSold = summary.TotalSold.Add(row.TotalSold)
	}
	return &summary, nil
}

// LowStockAlert is a bucket at or below its alert threshold.
type LowStockAlert struct {
	StockRecordId     int              `json:"stock_record_id"`
	StockType         models.StockType `json:"stock_type"`
	Variety           string           `json:"variety"`
	CurrentQuantity   decimal.Decimal  `json:"current_quantity"`
	LowStockThreshold decimal.Decimal  `json:"low_stock_threshold"`
	Shortfall         decimal.Decimal  `json:"shortfall"`
}

// GetLowStockAlerts lists buckets needing replenishment, worst shortfall
// first. Buckets without a threshold never alert.
func GetLowStockAlerts(ctx context.Context) ([]*LowStockAlert, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()

	var alerts []*LowStockAlert
	err := db.WithContext(ctx).Model(&models.StockRecord{}).
		Select("id AS stock_record_id, stock_type, variety, current_quantity, low_stock_threshold, (low_stock_threshold - current_quantity) AS shortfall").
		Where("mill_id = ? AND low_stock_threshold > 0 AND current_quantity <= low_stock_threshold", millId).
		Order("shortfall DESC").
		Scan(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}
