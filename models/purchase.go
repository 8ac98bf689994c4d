package models

import (
	"context"
	"errors"
	"time"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Purchase records paddy (or other stock) bought from a supplier party.
// TotalAmount, NetAmount, PendingAmount and PaymentStatus are derived fields,
// recomputed in BeforeSave. Callers never set them.
type Purchase struct {
	ID            int             `gorm:"primary_key" json:"id"`
	MillId        string          `gorm:"size:36;not null;uniqueIndex:uniq_mill_purchase_invoice" json:"mill_id"`
	InvoiceNumber string          `gorm:"size:50;not null;uniqueIndex:uniq_mill_purchase_invoice" json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	PartyId       int             `gorm:"index;not null" json:"party_id"`
	Party         *Party          `json:"party,omitempty"`
	BrokerId      *int            `gorm:"index" json:"broker_id"`
	Broker        *Broker         `json:"broker,omitempty"`
	StockType     StockType       `gorm:"size:20;not null" json:"stock_type"`
	Variety       string          `gorm:"size:100;not null" json:"variety"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	PricePerUnit  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_per_unit"`
	Commission    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission"`
	Hamali        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"hamali"`
	Cartage       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"cartage"`
	OtherCharges  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"other_charges"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	PendingAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pending_amount"`
	PaymentStatus PaymentStatus   `gorm:"size:10;not null;default:'PENDING'" json:"payment_status"`
	PaymentMode   PaymentMode     `gorm:"size:20" json:"payment_mode"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// PurchaseNetAmount is the money owed for a purchase: goods plus every charge
// the mill bears on top.
func PurchaseNetAmount(total, commission, hamali, cartage, other decimal.Decimal) decimal.Decimal {
	return total.Add(commission).Add(hamali).Add(cartage).Add(other)
}

// DerivePaymentStatus maps paid-vs-net onto the three payment states.
// Overpayment is rejected upstream, so paid > net never reaches here.
func DerivePaymentStatus(net, paid decimal.Decimal) PaymentStatus {
	if paid.GreaterThanOrEqual(net) && net.GreaterThan(decimal.Zero) {
		return PaymentStatusPaid
	}
	if paid.GreaterThan(decimal.Zero) {
		return PaymentStatusPartial
	}
	return PaymentStatusPending
}

func (p *Purchase) recompute() {
	p.TotalAmount = p.Quantity.Mul(p.PricePerUnit).Round(4)
	p.NetAmount = PurchaseNetAmount(p.TotalAmount, p.Commission, p.Hamali, p.Cartage, p.OtherCharges)
	p.PendingAmount = p.NetAmount.Sub(p.PaidAmount)
	p.PaymentStatus = DerivePaymentStatus(p.NetAmount, p.PaidAmount)
}

func (p *Purchase) BeforeSave(tx *gorm.DB) error {
	p.recompute()
	return nil
}

type NewPurchase struct {
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	PartyId       int             `json:"party_id" binding:"required"`
	BrokerId      *int            `json:"broker_id"`
	StockType     StockType       `json:"stock_type" binding:"required"`
	Variety       string          `json:"variety" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity" binding:"required"`
	PricePerUnit  decimal.Decimal `json:"price_per_unit" binding:"required"`
	Commission    decimal.Decimal `json:"commission"`
	Hamali        decimal.Decimal `json:"hamali"`
	Cartage       decimal.Decimal `json:"cartage"`
	OtherCharges  decimal.Decimal `json:"other_charges"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentMode   PaymentMode     `json:"payment_mode"`
	Notes         string          `json:"notes"`
}

func (input *NewPurchase) validate(ctx context.Context, millId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Purchase](ctx, millId, id); err != nil {
			return err
		}
	}
	if !input.StockType.Valid() {
		return utils.ValidationError{Message: "invalid stock type"}
	}
	if input.Variety == "" {
		return utils.ValidationError{Message: "variety is required"}
	}
	if !input.Quantity.GreaterThan(decimal.Zero) {
		return utils.ValidationError{Message: "quantity must be greater than zero"}
	}
	if input.PricePerUnit.IsNegative() {
		return utils.ValidationError{Message: "price per unit cannot be negative"}
	}
	for _, charge := range []decimal.Decimal{input.Commission, input.Hamali, input.Cartage, input.OtherCharges, input.PaidAmount} {
		if charge.IsNegative() {
			return utils.ValidationError{Message: "amounts cannot be negative"}
		}
	}
	if input.PaymentMode != "" && !input.PaymentMode.Valid() {
		return utils.ValidationError{Message: "invalid payment mode"}
	}

	party, err := utils.FetchModel[Party](ctx, millId, input.PartyId)
	if err != nil {
		return err
	}
	if party.Type == PartyTypeCustomer {
		return utils.ValidationError{Message: "party is not a supplier"}
	}
	if input.BrokerId != nil {
		if err := utils.ValidateResourceId[Broker](ctx, millId, *input.BrokerId); err != nil {
			return err
		}
	}

	net := PurchaseNetAmount(input.Quantity.Mul(input.PricePerUnit).Round(4),
		input.Commission, input.Hamali, input.Cartage, input.OtherCharges)
	if input.PaidAmount.GreaterThan(net) {
		return utils.ValidationError{Message: "paid amount cannot exceed net amount"}
	}
	return nil
}

func (input *NewPurchase) toPurchase(millId string) Purchase {
	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}
	return Purchase{
		MillId:        millId,
		InvoiceNumber: input.InvoiceNumber,
		InvoiceDate:   invoiceDate,
		PartyId:       input.PartyId,
		BrokerId:      input.BrokerId,
		StockType:     input.StockType,
		Variety:       input.Variety,
		Quantity:      input.Quantity,
		PricePerUnit:  input.PricePerUnit,
		Commission:    input.Commission,
		Hamali:        input.Hamali,
		Cartage:       input.Cartage,
		OtherCharges:  input.OtherCharges,
		PaidAmount:    input.PaidAmount,
		PaymentMode:   input.PaymentMode,
		Notes:         input.Notes,
	}
}

// applyPurchaseSideEffects posts the stock inflow, supplier payable and broker
// commission for a purchase row inside the caller's transaction.
func applyPurchaseSideEffects(tx *gorm.DB, purchase *Purchase) error {
	record, err := FirstOrCreateStockRecord(tx, purchase.MillId, purchase.StockType, purchase.Variety)
	if err != nil {
		return err
	}
	if err := ApplyPurchaseStock(tx, record, purchase.Quantity); err != nil {
		return err
	}

	if purchase.PendingAmount.GreaterThan(decimal.Zero) {
		err = ApplyPartyLedgerDelta(tx, purchase.MillId, purchase.PartyId,
			LedgerEntryKindPayableDelta, purchase.PendingAmount,
			LedgerReferenceTypePurchase, purchase.ID, "purchase "+purchase.InvoiceNumber)
		if err != nil {
			return err
		}
	}

	if purchase.BrokerId != nil && purchase.Commission.GreaterThan(decimal.Zero) {
		err = ApplyBrokerLedgerDelta(tx, purchase.MillId, *purchase.BrokerId,
			LedgerEntryKindPayableDelta, purchase.Commission,
			LedgerReferenceTypePurchase, purchase.ID, "commission "+purchase.InvoiceNumber)
		if err != nil {
			return err
		}
	}
	return nil
}

// reversePurchaseSideEffects undoes what applyPurchaseSideEffects posted.
// Gross stock counters are reversed only on the update path; deletes keep
// the purchase in the lifetime totals.
func reversePurchaseSideEffects(tx *gorm.DB, purchase *Purchase, reverseGross bool) error {
	record, err := FirstOrCreateStockRecord(tx, purchase.MillId, purchase.StockType, purchase.Variety)
	if err != nil {
		return err
	}
	if err := ReversePurchaseStock(tx, record, purchase.Quantity, reverseGross); err != nil {
		return err
	}

	if purchase.PendingAmount.GreaterThan(decimal.Zero) {
		err = ApplyPartyLedgerDelta(tx, purchase.MillId, purchase.PartyId,
			reverseKind(LedgerEntryKindPayableDelta), purchase.PendingAmount,
			LedgerReferenceTypePurchase, purchase.ID, "reverse purchase "+purchase.InvoiceNumber)
		if err != nil {
			return err
		}
	}

	if purchase.BrokerId != nil && purchase.Commission.GreaterThan(decimal.Zero) {
		err = ApplyBrokerLedgerDelta(tx, purchase.MillId, *purchase.BrokerId,
			reverseKind(LedgerEntryKindPayableDelta), purchase.Commission,
			LedgerReferenceTypePurchase, purchase.ID, "reverse commission "+purchase.InvoiceNumber)
		if err != nil {
			return err
		}
	}
	return nil
}

func CreatePurchase(ctx context.Context, input *NewPurchase) (*Purchase, error) {

	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	commission, err := resolveBrokerCommission(ctx, millId, input.BrokerId,
		input.Commission, input.Quantity.Mul(input.PricePerUnit).Round(4))
	if err != nil {
		return nil, err
	}
	input.Commission = commission

	if err := input.validate(ctx, millId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()

	if input.InvoiceNumber == "" {
		prefix := GetMillSetting(ctx, millId, SettingPurchasePrefix, "PUR")
		number, err := NextInvoiceNumber[Purchase](ctx, millId, prefix, "invoice_number")
		if err != nil {
			return nil, err
		}
		input.InvoiceNumber = number
	} else {
		if err := utils.ValidateUnique[Purchase](ctx, millId, "invoice_number", input.InvoiceNumber, 0); err != nil {
			return nil, err
		}
	}

	purchase := input.toPurchase(millId)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Create(&purchase).Error; err != nil {
		tx.Rollback()
		// Two creates can race past the pre-insert uniqueness check; the
		// unique index is the arbiter and its loser is still a conflict.
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.ConflictError{Message: "invoice number already exists"}
		}
		return nil, err
	}

	if err := applyPurchaseSideEffects(tx, &purchase); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventPurchaseCreated, &purchase.ID, LedgerReferenceTypePurchase, nil, purchase)

	return utils.FetchModel[Purchase](ctx, millId, purchase.ID, "Party", "Broker")
}

// UpdatePurchase replaces the document and re-posts its side effects in one
// transaction: reverse the old stock/balance postings, then apply the new
// ones. There is no window where only half the accounting is visible.
func UpdatePurchase(ctx context.Context, id int, input *NewPurchase) (*Purchase, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	commission, err := resolveBrokerCommission(ctx, millId, input.BrokerId,
		input.Commission, input.Quantity.Mul(input.PricePerUnit).Round(4))
	if err != nil {
		return nil, err
	}
	input.Commission = commission

	if err := input.validate(ctx, millId, id); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	// Lock the document row so the reversal below undoes what is actually
	// committed, not what the row held before a racing payment landed.
	old, err := lockDocumentForUpdate[Purchase](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.InvoiceNumber == "" {
		input.InvoiceNumber = old.InvoiceNumber
	} else if input.InvoiceNumber != old.InvoiceNumber {
		if err := utils.ValidateUnique[Purchase](ctx, millId, "invoice_number", input.InvoiceNumber, id); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updated := input.toPurchase(millId)
	updated.ID = old.ID
	updated.CreatedAt = old.CreatedAt
	updated.recompute()

	if err := reversePurchaseSideEffects(tx, old, true); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Save(&updated).Error; err != nil {
		tx.Rollback()
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.ConflictError{Message: "invoice number already exists"}
		}
		return nil, err
	}

	if err := applyPurchaseSideEffects(tx, &updated); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventPurchaseUpdated, &updated.ID, LedgerReferenceTypePurchase, old, updated)

	return utils.FetchModel[Purchase](ctx, millId, updated.ID, "Party", "Broker")
}

// DeletePurchase removes the document and reverses its live accounting.
// current_quantity gives back what the purchase brought in (clamped at zero
// if it was already sold on); total_purchased keeps the historical inflow.
func DeletePurchase(ctx context.Context, id int) (*Purchase, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	purchase, err := lockDocumentForUpdate[Purchase](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := reversePurchaseSideEffects(tx, purchase, false); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Delete(purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventPurchaseDeleted, &purchase.ID, LedgerReferenceTypePurchase, purchase, nil)

	return purchase, nil
}

type PaymentInput struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	PaymentMode PaymentMode     `json:"payment_mode" binding:"required"`
	Notes       string          `json:"notes"`
}

func (input *PaymentInput) validate() error {
	if !input.Amount.GreaterThan(decimal.Zero) {
		return utils.ValidationError{Message: "payment amount must be greater than zero"}
	}
	if !input.PaymentMode.Valid() {
		return utils.ValidationError{Message: "invalid payment mode"}
	}
	return nil
}

// RecordPurchasePayment pays down a supplier invoice. Paying more than the
// pending amount is rejected outright.
func RecordPurchasePayment(ctx context.Context, id int, input *PaymentInput) (*Purchase, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	// The pending-amount guard only holds while this row lock does. Two
	// payments racing on a pre-tx snapshot would both pass it.
	purchase, err := lockDocumentForUpdate[Purchase](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.Amount.GreaterThan(purchase.PendingAmount) {
		tx.Rollback()
		return nil, utils.BusinessRuleError{Message: "payment exceeds pending amount"}
	}

	purchase.PaidAmount = purchase.PaidAmount.Add(input.Amount)
	purchase.PaymentMode = input.PaymentMode
	if err := tx.Save(purchase).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	err = ApplyPartyLedgerDelta(tx, millId, purchase.PartyId,
		LedgerEntryKindReceivableDelta, input.Amount,
		LedgerReferenceTypePayment, purchase.ID, "payment "+purchase.InvoiceNumber)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventPaymentRecorded, &purchase.ID, LedgerReferenceTypePayment, nil, purchase)

	return utils.FetchModel[Purchase](ctx, millId, purchase.ID, "Party", "Broker")
}

func GetPurchase(ctx context.Context, id int) (*Purchase, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[Purchase](ctx, millId, id, "Party", "Broker")
}

type PurchaseFilter struct {
	PartyId       *int
	StockType     *StockType
	PaymentStatus *PaymentStatus
	FromDate      *time.Time
	ToDate        *time.Time
	Page          int
	Limit         int
}

func ListPurchases(ctx context.Context, filter PurchaseFilter) ([]*Purchase, *Pagination, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Purchase{}).Where("mill_id = ?", millId)

	if filter.PartyId != nil {
		dbCtx = dbCtx.Where("party_id = ?", *filter.PartyId)
	}
	if filter.StockType != nil {
		dbCtx = dbCtx.Where("stock_type = ?", *filter.StockType)
	}
	if filter.PaymentStatus != nil {
		dbCtx = dbCtx.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.FromDate != nil {
		dbCtx = dbCtx.Where("invoice_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		dbCtx = dbCtx.Where("invoice_date <= ?", *filter.ToDate)
	}

	var results []*Purchase
	pagination, err := Paginate(dbCtx.Preload("Party").Preload("Broker").Order("invoice_date DESC, id DESC"),
		filter.Page, filter.Limit, &results)
	if err != nil {
		return nil, nil, err
	}
	return results, pagination, nil
}
