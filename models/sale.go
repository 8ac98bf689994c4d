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

// Sale records stock sold to a customer party. Derived amount fields are
// recomputed in BeforeSave; stock availability is verified under a row lock
// before any quantity leaves the bucket.
type Sale struct {
	ID             int             `gorm:"primary_key" json:"id"`
	MillId         string          `gorm:"size:36;not null;uniqueIndex:uniq_mill_sale_invoice" json:"mill_id"`
	InvoiceNumber  string          `gorm:"size:50;not null;uniqueIndex:uniq_mill_sale_invoice" json:"invoice_number"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	PartyId        int             `gorm:"index;not null" json:"party_id"`
	Party          *Party          `json:"party,omitempty"`
	BrokerId       *int            `gorm:"index" json:"broker_id"`
	Broker         *Broker         `json:"broker,omitempty"`
	StockType      StockType       `gorm:"size:20;not null" json:"stock_type"`
	Variety        string          `gorm:"size:100;not null" json:"variety"`
	Quantity       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	PricePerUnit   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_per_unit"`
	GstAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"gst_amount"`
	Commission     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission"`
	Deductions     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deductions"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	NetAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_amount"`
	ReceivedAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"received_amount"`
	PendingAmount  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"pending_amount"`
	PaymentStatus  PaymentStatus   `gorm:"size:10;not null;default:'PENDING'" json:"payment_status"`
	PaymentMode    PaymentMode     `gorm:"size:20" json:"payment_mode"`
	VehicleNumber  string          `gorm:"size:20" json:"vehicle_number"`
	Notes          string          `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// SaleNetAmount is what the customer actually owes: goods plus GST, minus
// broker commission and agreed deductions.
func SaleNetAmount(total, gst, commission, deductions decimal.Decimal) decimal.Decimal {
	return total.Add(gst).Sub(commission).Sub(deductions)
}

func (s *Sale) recompute() {
	s.TotalAmount = s.Quantity.Mul(s.PricePerUnit).Round(4)
	s.NetAmount = SaleNetAmount(s.TotalAmount, s.GstAmount, s.Commission, s.Deductions)
	s.PendingAmount = s.NetAmount.Sub(s.ReceivedAmount)
	s.PaymentStatus = DerivePaymentStatus(s.NetAmount, s.ReceivedAmount)
}

func (s *Sale) BeforeSave(tx *gorm.DB) error {
	s.recompute()
	return nil
}

type NewSale struct {
	InvoiceNumber  string          `json:"invoice_number"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	PartyId        int             `json:"party_id" binding:"required"`
	BrokerId       *int            `json:"broker_id"`
	StockType      StockType       `json:"stock_type" binding:"required"`
	Variety        string          `json:"variety" binding:"required"`
	Quantity       decimal.Decimal `json:"quantity" binding:"required"`
	PricePerUnit   decimal.Decimal `json:"price_per_unit" binding:"required"`
	GstAmount      decimal.Decimal `json:"gst_amount"`
	Commission     decimal.Decimal `json:"commission"`
	Deductions     decimal.Decimal `json:"deductions"`
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	PaymentMode    PaymentMode     `json:"payment_mode"`
	VehicleNumber  string          `json:"vehicle_number"`
	Notes          string          `json:"notes"`
}

func (input *NewSale) validate(ctx context.Context, millId string, id int) error {
	if id > 0 {
		if err := utils.ValidateResourceId[Sale](ctx, millId, id); err != nil {
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
	for _, amount := range []decimal.Decimal{input.GstAmount, input.Commission, input.Deductions, input.ReceivedAmount} {
		if amount.IsNegative() {
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
	if party.Type == PartyTypeSupplier {
		return utils.ValidationError{Message: "party is not a customer"}
	}
	if input.BrokerId != nil {
		if err := utils.ValidateResourceId[Broker](ctx, millId, *input.BrokerId); err != nil {
			return err
		}
	}

	net := SaleNetAmount(input.Quantity.Mul(input.PricePerUnit).Round(4),
		input.GstAmount, input.Commission, input.Deductions)
	if net.IsNegative() {
		return utils.ValidationError{Message: "net amount cannot be negative"}
	}
	if input.ReceivedAmount.GreaterThan(net) {
		return utils.ValidationError{Message: "received amount cannot exceed net amount"}
	}
	return nil
}

func (input *NewSale) toSale(millId string) Sale {
	invoiceDate := input.InvoiceDate
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}
	return Sale{
		MillId:         millId,
		InvoiceNumber:  input.InvoiceNumber,
		InvoiceDate:    invoiceDate,
		PartyId:        input.PartyId,
		BrokerId:       input.BrokerId,
		StockType:      input.StockType,
		Variety:        input.Variety,
		Quantity:       input.Quantity,
		PricePerUnit:   input.PricePerUnit,
		GstAmount:      input.GstAmount,
		Commission:     input.Commission,
		Deductions:     input.Deductions,
		ReceivedAmount: input.ReceivedAmount,
		PaymentMode:    input.PaymentMode,
		VehicleNumber:  input.VehicleNumber,
		Notes:          input.Notes,
	}
}

// applySaleSideEffects posts the stock outflow, customer receivable and
// broker commission inside the caller's transaction. ApplySaleStock holds the
// bucket's row lock and fails with InsufficientStockError when the on-hand
// quantity cannot cover the sale.
func applySaleSideEffects(tx *gorm.DB, sale *Sale) error {
	record, err := FirstOrCreateStockRecord(tx, sale.MillId, sale.StockType, sale.Variety)
	if err != nil {
		return err
	}
	if err := ApplySaleStock(tx, record, sale.Quantity); err != nil {
		return err
	}

	if sale.PendingAmount.GreaterThan(decimal.Zero) {
		err = ApplyPartyLedgerDelta(tx, sale.MillId, sale.PartyId,
			LedgerEntryKindReceivableDelta, sale.PendingAmount,
			LedgerReferenceTypeSale, sale.ID, "sale "+sale.InvoiceNumber)
		if err != nil {
			return err
		}
	}

	if sale.BrokerId != nil && sale.Commission.GreaterThan(decimal.Zero) {
		err = ApplyBrokerLedgerDelta(tx, sale.MillId, *sale.BrokerId,
			LedgerEntryKindPayableDelta, sale.Commission,
			LedgerReferenceTypeSale, sale.ID, "commission "+sale.InvoiceNumber)
		if err != nil {
			return err
		}
	}
	return nil
}

func reverseSaleSideEffects(tx *gorm.DB, sale *Sale, reverseGross bool) error {
	record, err := FirstOrCreateStockRecord(tx, sale.MillId, sale.StockType, sale.Variety)
	if err != nil {
		return err
	}
	if err := ReverseSaleStock(tx, record, sale.Quantity, reverseGross); err != nil {
		return err
	}

	if sale.PendingAmount.GreaterThan(decimal.Zero) {
		err = ApplyPartyLedgerDelta(tx, sale.MillId, sale.PartyId,
			reverseKind(LedgerEntryKindReceivableDelta), sale.PendingAmount,
			LedgerReferenceTypeSale, sale.ID, "reverse sale "+sale.InvoiceNumber)
		if err != nil {
			return err
		}
	}

	if sale.BrokerId != nil && sale.Commission.GreaterThan(decimal.Zero) {
		err = ApplyBrokerLedgerDelta(tx, sale.MillId, *sale.BrokerId,
			reverseKind(LedgerEntryKindPayableDelta), sale.Commission,
			LedgerReferenceTypeSale, sale.ID, "reverse commission "+sale.InvoiceNumber)
		if err != nil {
			return err
		}
	}
	return nil
}

func CreateSale(ctx context.Context, input *NewSale) (*Sale, error) {

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
		prefix := GetMillSetting(ctx, millId, SettingSalePrefix, "SAL")
		number, err := NextInvoiceNumber[Sale](ctx, millId, prefix, "invoice_number")
		if err != nil {
			return nil, err
		}
		input.InvoiceNumber = number
	} else {
		if err := utils.ValidateUnique[Sale](ctx, millId, "invoice_number", input.InvoiceNumber, 0); err != nil {
			return nil, err
		}
	}

	sale := input.toSale(millId)

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	if err := tx.Create(&sale).Error; err != nil {
		tx.Rollback()
		// Two creates can race past the pre-insert uniqueness check; the
		// unique index is the arbiter and its loser is still a conflict.
		if utils.IsDuplicateKeyError(err) {
			return nil, utils.ConflictError{Message: "invoice number already exists"}
		}
		return nil, err
	}

	if err := applySaleSideEffects(tx, &sale); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventSaleCreated, &sale.ID, LedgerReferenceTypeSale, nil, sale)

	return utils.FetchModel[Sale](ctx, millId, sale.ID, "Party", "Broker")
}

// UpdateSale reverses the old document's postings and applies the new ones in
// a single transaction. Because the old quantity is returned to stock before
// the new quantity is checked, availability is effectively judged on the net
// increase only.
func UpdateSale(ctx context.Context, id int, input *NewSale) (*Sale, error) {
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
	// committed, not what the row held before a racing receipt landed.
	old, err := lockDocumentForUpdate[Sale](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.InvoiceNumber == "" {
		input.InvoiceNumber = old.InvoiceNumber
	} else if input.InvoiceNumber != old.InvoiceNumber {
		if err := utils.ValidateUnique[Sale](ctx, millId, "invoice_number", input.InvoiceNumber, id); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	updated := input.toSale(millId)
	updated.ID = old.ID
	updated.CreatedAt = old.CreatedAt
	updated.recompute()

	if err := reverseSaleSideEffects(tx, old, true); err != nil {
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

	if err := applySaleSideEffects(tx, &updated); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventSaleUpdated, &updated.ID, LedgerReferenceTypeSale, old, updated)

	return utils.FetchModel[Sale](ctx, millId, updated.ID, "Party", "Broker")
}

// DeleteSale returns the sold quantity to stock and clears the customer's
// pending receivable. total_sold keeps the historical outflow.
func DeleteSale(ctx context.Context, id int) (*Sale, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	sale, err := lockDocumentForUpdate[Sale](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := reverseSaleSideEffects(tx, sale, false); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Delete(sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventSaleDeleted, &sale.ID, LedgerReferenceTypeSale, sale, nil)

	return sale, nil
}

// RecordSalePayment records money received against a customer invoice.
func RecordSalePayment(ctx context.Context, id int, input *PaymentInput) (*Sale, error) {
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
	// receipts racing on a pre-tx snapshot would both pass it.
	sale, err := lockDocumentForUpdate[Sale](tx, millId, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if input.Amount.GreaterThan(sale.PendingAmount) {
		tx.Rollback()
		return nil, utils.BusinessRuleError{Message: "payment exceeds pending amount"}
	}

	sale.ReceivedAmount = sale.ReceivedAmount.Add(input.Amount)
	sale.PaymentMode = input.PaymentMode
	if err := tx.Save(sale).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	err = ApplyPartyLedgerDelta(tx, millId, sale.PartyId,
		LedgerEntryKindPayableDelta, input.Amount,
		LedgerReferenceTypePayment, sale.ID, "receipt "+sale.InvoiceNumber)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	emitMillEvent(ctx, millId, EventPaymentRecorded, &sale.ID, LedgerReferenceTypePayment, nil, sale)

	return utils.FetchModel[Sale](ctx, millId, sale.ID, "Party", "Broker")
}

func GetSale(ctx context.Context, id int) (*Sale, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}
	return utils.FetchModel[Sale](ctx, millId, id, "Party", "Broker")
}

type SaleFilter struct {
	PartyId       *int
	StockType     *StockType
	PaymentStatus *PaymentStatus
	FromDate      *time.Time
	ToDate        *time.Time
	Page          int
	Limit         int
}

func ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, *Pagination, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, nil, errors.New("mill id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&Sale{}).Where("mill_id = ?", millId)

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

	var results []*Sale
	pagination, err := Paginate(dbCtx.Preload("Party").Preload("Broker").Order("invoice_date DESC, id DESC"),
		filter.Page, filter.Limit, &results)
	if err != nil {
		return nil, nil, err
	}
	return results, pagination, nil
}
