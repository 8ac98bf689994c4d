package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockRecord tracks one (stock type, variety) bucket per mill.
// TotalPurchased and TotalSold are gross lifetime counters: they only grow
// on new inflow/outflow and are never reduced when a document is deleted.
type StockRecord struct {
	ID                int             `gorm:"primary_key" json:"id"`
	MillId            string          `gorm:"size:36;not null;uniqueIndex:uniq_mill_stock" json:"mill_id"`
	StockType         StockType       `gorm:"size:20;not null;uniqueIndex:uniq_mill_stock" json:"stock_type"`
	Variety           string          `gorm:"size:100;not null;uniqueIndex:uniq_mill_stock" json:"variety"`
	CurrentQuantity   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_quantity"`
	TotalPurchased    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_purchased"`
	TotalSold         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_sold"`
	LowStockThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"low_stock_threshold"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FirstOrCreateStockRecord loads the bucket row under a FOR UPDATE lock,
// creating it first if missing. Callers hold the lock until tx commit, which
// serializes every movement touching the same bucket.
func FirstOrCreateStockRecord(tx *gorm.DB, millId string, stockType StockType, variety string) (*StockRecord, error) {
	record := StockRecord{
		MillId:    millId,
		StockType: stockType,
		Variety:   variety,
	}
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(StockRecord{MillId: millId, StockType: stockType, Variety: variety}).
		FirstOrCreate(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// StockAvailability reports whether a bucket can satisfy a requested outflow.
type StockAvailability struct {
	Available       bool            `json:"available"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	Shortfall       decimal.Decimal `json:"shortfall"`
}

// CheckStockAvailability compares a locked record against a required outflow.
// The caller must already hold the row lock from FirstOrCreateStockRecord so
// the answer stays valid until commit.
func CheckStockAvailability(record *StockRecord, required decimal.Decimal) StockAvailability {
	if record.CurrentQuantity.GreaterThanOrEqual(required) {
		return StockAvailability{Available: true, CurrentQuantity: record.CurrentQuantity, Shortfall: decimal.Zero}
	}
	return StockAvailability{
		Available:       false,
		CurrentQuantity: record.CurrentQuantity,
		Shortfall:       required.Sub(record.CurrentQuantity),
	}
}

func insufficientStock(record *StockRecord, required decimal.Decimal) error {
	return utils.InsufficientStockError{
		StockType: string(record.StockType),
		Variety:   record.Variety,
		Current:   record.CurrentQuantity,
		Required:  required,
	}
}

// ApplyPurchaseStock records an inflow from a purchase. Increments run as a
// single UPDATE in SQL so concurrent transactions never lose a delta.
func ApplyPurchaseStock(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal) error {
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = current_quantity + ?, total_purchased = total_purchased + ? WHERE id = ?",
		quantity, quantity, record.ID,
	).Error
}

// ReversePurchaseStock undoes a purchase inflow. The gross counter is only
// reversed on update paths (reverse then reapply); deletes keep it.
// GREATEST clamps the on-hand quantity at zero when the purchased stock was
// already sold on.
func ReversePurchaseStock(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal, reverseGross bool) error {
	if reverseGross {
		return tx.Exec(
			"UPDATE stock_records SET current_quantity = GREATEST(current_quantity - ?, 0), total_purchased = GREATEST(total_purchased - ?, 0) WHERE id = ?",
			quantity, quantity, record.ID,
		).Error
	}
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = GREATEST(current_quantity - ?, 0) WHERE id = ?",
		quantity, record.ID,
	).Error
}

// ApplySaleStock records an outflow from a sale. The locked record must cover
// the quantity when strict availability is on.
func ApplySaleStock(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal) error {
	if config.StrictStockAvailability() {
		if avail := CheckStockAvailability(record, quantity); !avail.Available {
			return insufficientStock(record, quantity)
		}
	}
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = GREATEST(current_quantity - ?, 0), total_sold = total_sold + ? WHERE id = ?",
		quantity, quantity, record.ID,
	).Error
}

// ReverseSaleStock returns sold quantity to stock.
func ReverseSaleStock(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal, reverseGross bool) error {
	if reverseGross {
		return tx.Exec(
			"UPDATE stock_records SET current_quantity = current_quantity + ?, total_sold = GREATEST(total_sold - ?, 0) WHERE id = ?",
			quantity, quantity, record.ID,
		).Error
	}
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = current_quantity + ? WHERE id = ?",
		quantity, record.ID,
	).Error
}

// ApplyTransferOut debits the source bucket of a transfer. Availability is
// always enforced here: a transfer that cannot be covered is meaningless.
func ApplyTransferOut(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal) error {
	if avail := CheckStockAvailability(record, quantity); !avail.Available {
		return insufficientStock(record, quantity)
	}
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = current_quantity - ? WHERE id = ?",
		quantity, record.ID,
	).Error
}

// ApplyTransferIn credits the destination bucket of a transfer.
func ApplyTransferIn(tx *gorm.DB, record *StockRecord, quantity decimal.Decimal) error {
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = current_quantity + ? WHERE id = ?",
		quantity, record.ID,
	).Error
}

// ReverseTransfer undoes both legs of a transfer. The inbound leg is clamped
// since the transferred stock may have moved on.
func ReverseTransfer(tx *gorm.DB, source *StockRecord, destination *StockRecord, fromQuantity, toQuantity decimal.Decimal) error {
	err := tx.Exec(
		"UPDATE stock_records SET current_quantity = GREATEST(current_quantity - ?, 0) WHERE id = ?",
		toQuantity, destination.ID,
	).Error
	if err != nil {
		return err
	}
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = current_quantity + ? WHERE id = ?",
		fromQuantity, source.ID,
	).Error
}

// ApplyAdjustment moves the on-hand quantity by a signed delta without
// touching the gross counters. Negative results are clamped at zero.
func ApplyAdjustment(tx *gorm.DB, record *StockRecord, delta decimal.Decimal) error {
	return tx.Exec(
		"UPDATE stock_records SET current_quantity = GREATEST(current_quantity + ?, 0) WHERE id = ?",
		delta, record.ID,
	).Error
}

// NewStockRecord seeds a bucket with an opening quantity, typically during
// mill onboarding.
type NewStockRecord struct {
	StockType         StockType       `json:"stock_type" binding:"required"`
	Variety           string          `json:"variety" binding:"required"`
	OpeningQuantity   decimal.Decimal `json:"opening_quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
}

func (input *NewStockRecord) validate() error {
	if !input.StockType.Valid() {
		return utils.ValidationError{Message: "invalid stock type"}
	}
	if input.Variety == "" {
		return utils.ValidationError{Message: "variety is required"}
	}
	if input.OpeningQuantity.IsNegative() {
		return utils.ValidationError{Message: "opening quantity cannot be negative"}
	}
	if input.LowStockThreshold.IsNegative() {
		return utils.ValidationError{Message: "low stock threshold cannot be negative"}
	}
	return nil
}

func InitializeStockRecord(ctx context.Context, input *NewStockRecord) (*StockRecord, error) {

	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	count, err := utils.ResourceCountWhere[StockRecord](ctx, millId,
		"stock_type = ? AND variety = ?", input.StockType, input.Variety)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError{Message: "stock record already exists for this variety"}
	}

	db := config.GetDB()
	record := StockRecord{
		MillId:            millId,
		StockType:         input.StockType,
		Variety:           input.Variety,
		CurrentQuantity:   input.OpeningQuantity,
		LowStockThreshold: input.LowStockThreshold,
	}
	if err := db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// AdjustStock corrects the on-hand quantity of a bucket by a signed delta,
// in its own transaction.
func AdjustStock(ctx context.Context, stockType StockType, variety string, delta decimal.Decimal, reason string) (*StockRecord, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	if !stockType.Valid() {
		return nil, utils.ValidationError{Message: "invalid stock type"}
	}
	if delta.IsZero() {
		return nil, utils.ValidationError{Message: "adjustment delta cannot be zero"}
	}
	if reason == "" {
		return nil, utils.ValidationError{Message: "adjustment reason is required"}
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	record, err := FirstOrCreateStockRecord(tx, millId, stockType, variety)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := ApplyAdjustment(tx, record, delta); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	refId := record.ID
	emitMillEvent(ctx, millId, EventStockAdjusted, &refId, LedgerReferenceTypeAdjustment, nil, record)

	return utils.FetchModel[StockRecord](ctx, millId, record.ID)
}

func UpdateLowStockThreshold(ctx context.Context, id int, threshold decimal.Decimal) (*StockRecord, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	if threshold.IsNegative() {
		return nil, utils.ValidationError{Message: "low stock threshold cannot be negative"}
	}

	record, err := utils.FetchModel[StockRecord](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(record).
		Update("LowStockThreshold", threshold).Error
	if err != nil {
		return nil, err
	}
	return record, nil
}

func GetStockRecord(ctx context.Context, id int) (*StockRecord, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[StockRecord](ctx, millId, id)
}

func GetStocksAll(ctx context.Context, stockType *StockType, variety *string) ([]*StockRecord, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	var results []*StockRecord

	dbCtx := db.WithContext(ctx).Where("mill_id = ?", millId)
	if stockType != nil && len(*stockType) > 0 {
		dbCtx = dbCtx.Where("stock_type = ?", *stockType)
	}
	if variety != nil && len(*variety) > 0 {
		dbCtx = dbCtx.Where("variety LIKE ?", "%"+*variety+"%")
	}
	err := dbCtx.Order("stock_type, variety").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
