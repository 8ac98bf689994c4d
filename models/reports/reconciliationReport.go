package reports

import (
	"context"
	"errors"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

// ReconciliationRow compares a counterparty's cached running balance against
// the sum of its ledger entries. Drift of zero means the cache is honest.
type ReconciliationRow struct {
	CounterpartyType string          `json:"counterparty_type"`
	CounterpartyId   int             `json:"counterparty_id"`
	Name             string          `json:"name"`
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	LedgerSum        decimal.Decimal `json:"ledger_sum"`
	Drift            decimal.Decimal `json:"drift"`
}

type ReconciliationReport struct {
	Clean bool                 `json:"clean"`
	Rows  []*ReconciliationRow `json:"rows"`
}

// GetReconciliationReport recomputes every counterparty balance from the
// ledger and reports the drift against the cached value. Signed sums use the
// same convention as LedgerEntry.SignedAmount: payables add, receivables
// subtract.
func GetReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	millId, ok := utils.GetMillIdFromContext(ctx)
	if !ok || millId == "" {
		return nil, errors.New("mill id is required")
	}

	db := config.GetDB()

	const signedSum = "COALESCE(SUM(CASE WHEN kind = 'PAYABLE_DELTA' THEN amount ELSE -amount END), 0)"

	var partyRows []*ReconciliationRow
	err := db.WithContext(ctx).Model(&models.Party{}).
		Select(`'PARTY' AS counterparty_type, parties.id AS counterparty_id, parties.name,
			parties.opening_balance, parties.current_balance,
			(SELECT `+signedSum+` FROM ledger_entries WHERE ledger_entries.mill_id = parties.mill_id AND ledger_entries.party_id = parties.id) AS ledger_sum`).
		Where("parties.mill_id = ?", millId).
		Order("parties.name").
		Scan(&partyRows).Error
	if err != nil {
		return nil, err
	}

	var brokerRows []*ReconciliationRow
	err = db.WithContext(ctx).Model(&models.Broker{}).
		Select(`'BROKER' AS counterparty_type, brokers.id AS counterparty_id, brokers.name,
			brokers.opening_balance, brokers.current_balance,
			(SELECT `+signedSum+` FROM ledger_entries WHERE ledger_entries.mill_id = brokers.mill_id AND ledger_entries.broker_id = brokers.id) AS ledger_sum`).
		Where("brokers.mill_id = ?", millId).
		Order("brokers.name").
		Scan(&brokerRows).Error
	if err != nil {
		return nil, err
	}

	report := ReconciliationReport{Clean: true}
	for _, row := range append(partyRows, brokerRows...) {
		row.Drift = row.CurrentBalance.Sub(row.OpeningBalance).Sub(row.LedgerSum)
		if !row.Drift.IsZero() {
			report.Clean = false
		}
		report.Rows = append(report.Rows, row)
	}
	return &report, nil
}
