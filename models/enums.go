package models

// StockType identifies a quantity-tracked commodity line. Together with the
// variety string it forms one stock bucket per mill.
type StockType string

const (
	StockTypePaddy      StockType = "PADDY"
	StockTypeRice       StockType = "RICE"
	StockTypeBrokenRice StockType = "BROKEN_RICE"
	StockTypeBran       StockType = "BRAN"
	StockTypeHusk       StockType = "HUSK"
)

func (t StockType) Valid() bool {
	switch t {
	case StockTypePaddy, StockTypeRice, StockTypeBrokenRice, StockTypeBran, StockTypeHusk:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

type PaymentMode string

const (
	PaymentModeCash         PaymentMode = "CASH"
	PaymentModeBankTransfer PaymentMode = "BANK_TRANSFER"
	PaymentModeUpi          PaymentMode = "UPI"
	PaymentModeCheque       PaymentMode = "CHEQUE"
	PaymentModeCredit       PaymentMode = "CREDIT"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentModeCash, PaymentModeBankTransfer, PaymentModeUpi, PaymentModeCheque, PaymentModeCredit:
		return true
	}
	return false
}

type PartyType string

const (
	PartyTypeSupplier PartyType = "SUPPLIER"
	PartyTypeCustomer PartyType = "CUSTOMER"
	PartyTypeBoth     PartyType = "BOTH"
)

func (t PartyType) Valid() bool {
	switch t {
	case PartyTypeSupplier, PartyTypeCustomer, PartyTypeBoth:
		return true
	}
	return false
}

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleOwner UserRole = "OWNER"
	UserRoleStaff UserRole = "STAFF"
)

// LedgerEntryKind tags a counterparty balance delta with its ledger meaning.
// Balance convention: positive = the mill owes the counterparty (payable).
// PAYABLE_DELTA raises the balance by the entry amount, RECEIVABLE_DELTA
// lowers it. Keeping the sign rule on the kind (see LedgerEntry.SignedAmount)
// is what makes the purchase/sale asymmetry checkable in one place.
type LedgerEntryKind string

const (
	LedgerEntryKindPayableDelta    LedgerEntryKind = "PAYABLE_DELTA"
	LedgerEntryKindReceivableDelta LedgerEntryKind = "RECEIVABLE_DELTA"
)

// LedgerReferenceType names the document a ledger entry or event refers to.
type LedgerReferenceType string

const (
	LedgerReferenceTypePurchase   LedgerReferenceType = "PURCHASE"
	LedgerReferenceTypeSale       LedgerReferenceType = "SALE"
	LedgerReferenceTypePayment    LedgerReferenceType = "PAYMENT"
	LedgerReferenceTypeTransfer   LedgerReferenceType = "TRANSFER"
	LedgerReferenceTypeAdjustment LedgerReferenceType = "ADJUSTMENT"
)

// Event names emitted after successful commits.
const (
	EventPurchaseCreated  = "purchase:created"
	EventPurchaseUpdated  = "purchase:updated"
	EventPurchaseDeleted  = "purchase:deleted"
	EventSaleCreated      = "sale:created"
	EventSaleUpdated      = "sale:updated"
	EventSaleDeleted      = "sale:deleted"
	EventPaymentRecorded  = "payment:recorded"
	EventStockAdjusted    = "stock:adjusted"
	EventStockTransferred = "stock:transferred"
	EventTransferDeleted  = "transfer:deleted"
)
