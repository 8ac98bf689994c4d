package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntry is the append-only record of every counterparty balance delta.
// The running current_balance on Party/Broker is a cache of the sum of these
// entries plus the opening balance; the reconciliation report checks that.
type LedgerEntry struct {
	ID            int                 `gorm:"primary_key" json:"id"`
	MillId        string              `gorm:"size:36;index;not null" json:"mill_id"`
	PartyId       int                 `gorm:"index" json:"party_id"`
	BrokerId      int                 `gorm:"index" json:"broker_id"`
	Kind          LedgerEntryKind     `gorm:"type:enum('PAYABLE_DELTA','RECEIVABLE_DELTA');not null" json:"kind"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,4);not null" json:"amount"`
	ReferenceType LedgerReferenceType `gorm:"type:enum('PURCHASE','SALE','PAYMENT','TRANSFER');not null;index" json:"reference_type"`
	ReferenceId   int                 `gorm:"index" json:"reference_id"`
	Memo          string              `gorm:"size:255" json:"memo"`
	CreatedAt     time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

// SignedAmount is the only place the payable/receivable sign convention lives.
// Positive balance = mill owes the counterparty.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Kind == LedgerEntryKindReceivableDelta {
		return e.Amount.Neg()
	}
	return e.Amount
}

// ApplyPartyLedgerDelta appends a ledger entry and atomically moves the
// party's running balance by the entry's signed amount. Must run inside the
// caller's transaction so the balance and the entry commit or roll back
// together with the document mutation.
func ApplyPartyLedgerDelta(tx *gorm.DB, millId string, partyId int, kind LedgerEntryKind, amount decimal.Decimal, refType LedgerReferenceType, refId int, memo string) error {
	if amount.IsZero() {
		return nil
	}
	entry := LedgerEntry{
		MillId:        millId,
		PartyId:       partyId,
		Kind:          kind,
		Amount:        amount,
		ReferenceType: refType,
		ReferenceId:   refId,
		Memo:          memo,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return tx.Exec(
		"UPDATE parties SET current_balance = current_balance + ? WHERE id = ? AND mill_id = ?",
		entry.SignedAmount(), partyId, millId,
	).Error
}

// ApplyBrokerLedgerDelta is the broker-side twin of ApplyPartyLedgerDelta.
func ApplyBrokerLedgerDelta(tx *gorm.DB, millId string, brokerId int, kind LedgerEntryKind, amount decimal.Decimal, refType LedgerReferenceType, refId int, memo string) error {
	if amount.IsZero() {
		return nil
	}
	entry := LedgerEntry{
		MillId:        millId,
		BrokerId:      brokerId,
		Kind:          kind,
		Amount:        amount,
		ReferenceType: refType,
		ReferenceId:   refId,
		Memo:          memo,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return tx.Exec(
		"UPDATE brokers SET current_balance = current_balance + ? WHERE id = ? AND mill_id = ?",
		entry.SignedAmount(), brokerId, millId,
	).Error
}

// reverseKind flips a delta so delete paths can undo a prior entry while
// keeping the audit trail append-only.
func reverseKind(k LedgerEntryKind) LedgerEntryKind {
	if k == LedgerEntryKindPayableDelta {
		return LedgerEntryKindReceivableDelta
	}
	return LedgerEntryKindPayableDelta
}
