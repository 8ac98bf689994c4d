package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// StockTransfer converts quantity between two stock buckets of the same mill,
// typically paddy milled into rice plus by-products recorded as separate
// transfers. Both legs post in one transaction.
type StockTransfer struct {
	ID              int             `gorm:"primary_key" json:"id"`
	MillId          string          `gorm:"size:36;not null;uniqueIndex:uniq_mill_transfer_number" json:"mill_id"`
	TransferNumber  string          `gorm:"size:50;not null;uniqueIndex:uniq_mill_transfer_number" json:"transfer_number"`
	TransferDate    time.Time       `json:"transfer_date"`
	FromStockType   StockType       `gorm:"size:20;not null" json:"from_stock_type"`
	FromVariety     string          `gorm:"size:100;not null" json:"from_variety"`
	FromQuantity    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"from_quantity"`
	ToStockType     StockType       `gorm:"size:20;not null" json:"to_stock_type"`
	ToVariety       string          `gorm:"size:100;not null" json:"to_variety"`
	ToQuantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"to_quantity"`
	MillingYieldPct decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"milling_yield_pct"`
	Notes           string          `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// MillingYield is the output-to-input ratio as a percentage.
func MillingYield(fromQuantity, toQuantity decimal.Decimal) decimal.Decimal {
	if !fromQuantity.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return toQuantity.Div(fromQuantity).Mul(decimal.NewFromInt(100)).Round(4)
}

type NewStockTransfer struct {
	TransferNumber string          `json:"transfer_number"`
	TransferDate   time.Time       `json:"transfer_date"`
	FromStockType  StockType       `json:"from_stock_type" binding:"required"`
	FromVariety    string          `json:"from_variety" binding:"required"`
	FromQuantity   decimal.Decimal `json:"from_quantity" binding:"required"`
	ToStockType    StockType       `json:"to_stock_type" binding:"required"`
	ToVariety      string          `json:"to_variety" binding:"required"`
	ToQuantity     decimal.Decimal `json:"to_quantity" binding:"required"`
	Notes          string          `json:"notes"`
}

func (input *NewStockTransfer) validate() error {
	if !input.FromStockType.Valid() || !input.ToStockType.Valid() {
		return utils.ValidationError{Message: "invalid stock type"}
	}
	if input.FromVariety == "" || input.ToVariety == "" {
		return utils.ValidationError{Message: "variety is required"}
	}
	if input.FromStockType == input.ToStockType && input.FromVariety == input.ToVariety {
		return utils.ValidationError{Message: "source and destination must differ"}
	}
	if !input.FromQuantity.GreaterThan(decimal.Zero) || !input.ToQuantity.GreaterThan(decimal.Zero) {
		return utils.ValidationError{Message: "quantities must be greater than zero"}
	}
	return nil
}

// CreateStockTransfer debits the source bucket and credits the destination in
// one transaction. The source row is locked first; insufficient stock aborts
// before anything moves.
func CreateStockTransfer(ctx context.Context, input *NewStockTransfer) (*StockTransfer, error) {

	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	if input.TransferNumber == "" {
		prefix := GetMillSetting(ctx, millId, SettingTransferPrefix, "TRF")
		number, err := NextInvoiceNumber[StockTransfer](ctx, millId, prefix, "transfer_number")
		if err != nil {
			return nil, err
		}
		input.TransferNumber = number
	} else {
		if err := utils.ValidateUnique[StockTransfer](ctx, millId, "transfer_number", input.TransferNumber, 0); err != nil {
			return nil, err
		}
	}

	transferDate := input.TransferDate
	if transferDate.IsZero() {
		transferDate = time.Now()
	}

	transfer := StockTransfer{
		MillId:          millId,
		TransferNumber:  input.TransferNumber,
		TransferDate:    transferDate,
		FromStockType:   input.FromStockType,
		FromVariety:     input.FromVariety,
		FromQuantity:    input.FromQuantity,
		ToStockType:     input.ToStockType,
		ToVariety:       input.ToVariety,
		ToQuantity:      input.ToQuantity,
		MillingYieldPct: MillingYield(input.FromQuantity, input.ToQuantity),
		Notes:           input.Notes,
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	source, err := FirstOrCreateStockRecord(tx, millId, input.FromStockType, input.FromVariety)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := ApplyTransferOut(tx, source, input.FromQuantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	destination, err := FirstOrCreateStockRecord(tx, millId, input.ToStockType, input.ToVariety)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := ApplyTransferIn(tx, destination, input.ToQuantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Create(&transfer).Error; err != nil {
		tx.Rollback()
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.ConflictError{Message: "transfer number already exists"}
		}
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventStockTransferred, &transfer.ID, LedgerReferenceTypeTransfer, nil, transfer)

	return &transfer, nil
}

// DeleteStockTransfer reverses both legs atomically. The inbound quantity may
// have already been consumed, so the destination side clamps at zero.
func DeleteStockTransfer(ctx context.Context, id int) (*StockTransfer, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	transfer, err := utils.FetchModel[StockTransfer](ctx, millId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	source, err := FirstOrCreateStockRecord(tx, millId, transfer.FromStockType, transfer.FromVariety)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	destination, err := FirstOrCreateStockRecord(tx, millId, transfer.ToStockType, transfer.ToVariety)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := ReverseTransfer(tx, source, destination, transfer.FromQuantity, transfer.ToQuantity); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Delete(transfer).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventTransferDeleted, &transfer.ID, LedgerReferenceTypeTransfer, transfer, nil)

	return transfer, nil
}

func GetStockTransfer(ctx context.Context, id int) (*StockTransfer, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[StockTransfer](ctx, millId, id)
}

type StockTransferFilter struct {
	FromStockType *StockType
	ToStockType   *StockType
	FromDate      *time.Time
	ToDate        *time.Time
	Page          int
	Limit         int
}

func ListStockTransfers(ctx context.Context, filter StockTransferFilter) ([]*StockTransfer, *Pagination, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&StockTransfer{}).Where("mill_id = ?", millId)

	if filter.FromStockType != nil {
		dbCtx = dbCtx.Where("from_stock_type = ?", *filter.FromStockType)
	}
	if filter.ToStockType != nil {
		dbCtx = dbCtx.Where("to_stock_type = ?", *filter.ToStockType)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("transfer_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("transfer_date <= ?", *filter.ToDate)
	}

	var results []*StockTransfer
	pagination, err := Paginate(dbCtx.Order("transfer_date DESC, id DESC"), filter.Page, filter.Limit, &results)
	if err != nil {
		return nil, nil, err
	}
	return results, pagination, nil
}
