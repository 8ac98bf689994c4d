package models_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/riceworks/millbooks_backend/config"
	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/models/reports"
	"github.com/riceworks/millbooks_backend/utils"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func fetchStock(t *testing.T, ctx context.Context, stockType models.StockType, variety string) *models.StockRecord {
	t.Helper()
	var record models.StockRecord
	err := config.GetDB().WithContext(ctx).
		Where("stock_type = ? AND variety = ?", stockType, variety).
		First(&record).Error
	if err != nil {
		t.Fatalf("fetch stock %s/%s: %v", stockType, variety, err)
	}
	return &record
}

func fetchPartyBalance(t *testing.T, ctx context.Context, partyId int) decimal.Decimal {
	t.Helper()
	party, err := models.GetParty(ctx, partyId)
	if err != nil {
		t.Fatalf("GetParty: %v", err)
	}
	return party.CurrentBalance
}

func TestPurchaseSaleLifecycleKeepsStockAndLedgerConsistent(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	supplier, err := models.CreateParty(ctx, &models.NewParty{Name: "Anand Traders", Type: models.PartyTypeSupplier})
	if err != nil {
		t.Fatalf("CreateParty supplier: %v", err)
	}
	customer, err := models.CreateParty(ctx, &models.NewParty{Name: "City Rice Depot", Type: models.PartyTypeCustomer})
	if err != nil {
		t.Fatalf("CreateParty customer: %v", err)
	}
	broker, err := models.CreateBroker(ctx, &models.NewBroker{Name: "Kumar Brokerage", CommissionRate: dec("1")})
	if err != nil {
		t.Fatalf("CreateBroker: %v", err)
	}

	// 1) Buy 100 bags of paddy at 500. Broker commission defaults from the
	// 1 percent rate, so net = 50000 + 500.
	purchase, err := models.CreatePurchase(ctx, &models.NewPurchase{
		PartyId:      supplier.ID,
		BrokerId:     &broker.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "IR64",
		Quantity:     dec("100"),
		PricePerUnit: dec("500"),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if !strings.HasPrefix(purchase.InvoiceNumber, "PUR-") {
		t.Fatalf("auto invoice number = %q, want PUR- prefix", purchase.InvoiceNumber)
	}
	if !purchase.Commission.Equal(dec("500")) {
		t.Fatalf("commission = %s, want 500 (1%% of 50000)", purchase.Commission)
	}
	if !purchase.NetAmount.Equal(dec("50500")) || purchase.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("net = %s status = %s, want 50500 PENDING", purchase.NetAmount, purchase.PaymentStatus)
	}

	stock := fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	if !stock.CurrentQuantity.Equal(dec("100")) || !stock.TotalPurchased.Equal(dec("100")) {
		t.Fatalf("after purchase: current=%s purchased=%s, want 100/100", stock.CurrentQuantity, stock.TotalPurchased)
	}
	if bal := fetchPartyBalance(t, ctx, supplier.ID); !bal.Equal(dec("50500")) {
		t.Fatalf("supplier balance = %s, want 50500 (mill owes full net)", bal)
	}
	gotBroker, err := models.GetBroker(ctx, broker.ID)
	if err != nil {
		t.Fatalf("GetBroker: %v", err)
	}
	if !gotBroker.CurrentBalance.Equal(dec("500")) {
		t.Fatalf("broker balance = %s, want 500", gotBroker.CurrentBalance)
	}

	// 2) Reusing the invoice number must conflict.
	_, err = models.CreatePurchase(ctx, &models.NewPurchase{
		InvoiceNumber: purchase.InvoiceNumber,
		PartyId:       supplier.ID,
		StockType:     models.StockTypePaddy,
		Variety:       "IR64",
		Quantity:      dec("10"),
		PricePerUnit:  dec("500"),
	})
	var conflict utils.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate invoice: got %v, want ConflictError", err)
	}

	// 3) Sell 30 bags to the customer.
	sale, err := models.CreateSale(ctx, &models.NewSale{
		PartyId:      customer.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "IR64",
		Quantity:     dec("30"),
		PricePerUnit: dec("700"),
	})
	if err != nil {
		t.Fatalf("CreateSale: %v", err)
	}
	stock = fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	if !stock.CurrentQuantity.Equal(dec("70")) || !stock.TotalSold.Equal(dec("30")) {
		t.Fatalf("after sale: current=%s sold=%s, want 70/30", stock.CurrentQuantity, stock.TotalSold)
	}
	if bal := fetchPartyBalance(t, ctx, customer.ID); !bal.Equal(dec("-21000")) {
		t.Fatalf("customer balance = %s, want -21000 (customer owes the mill)", bal)
	}

	// 4) Selling more than on hand must hard-fail, leaving nothing behind.
	_, err = models.CreateSale(ctx, &models.NewSale{
		PartyId:      customer.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "IR64",
		Quantity:     dec("1000"),
		PricePerUnit: dec("700"),
	})
	var insufficient utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("oversell: got %v, want InsufficientStockError", err)
	}
	if !insufficient.Required.Equal(dec("1000")) || !insufficient.Current.Equal(dec("70")) {
		t.Fatalf("oversell detail: current=%s required=%s, want 70/1000", insufficient.Current, insufficient.Required)
	}
	stock = fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	if !stock.CurrentQuantity.Equal(dec("70")) {
		t.Fatalf("failed sale must not move stock, current=%s", stock.CurrentQuantity)
	}

	// 5) Raise the sale to 50 bags. Reverse-then-reapply runs in one
	// transaction, so the gross counter lands at 50, not 80.
	sale, err = models.UpdateSale(ctx, sale.ID, &models.NewSale{
		PartyId:      customer.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "IR64",
		Quantity:     dec("50"),
		PricePerUnit: dec("700"),
	})
	if err != nil {
		t.Fatalf("UpdateSale: %v", err)
	}
	stock = fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	if !stock.CurrentQuantity.Equal(dec("50")) || !stock.TotalSold.Equal(dec("50")) {
		t.Fatalf("after update: current=%s sold=%s, want 50/50", stock.CurrentQuantity, stock.TotalSold)
	}
	if bal := fetchPartyBalance(t, ctx, customer.ID); !bal.Equal(dec("-35000")) {
		t.Fatalf("customer balance after update = %s, want -35000", bal)
	}

	// 6) A payment larger than the pending amount is rejected.
	_, err = models.RecordPurchasePayment(ctx, purchase.ID, &models.PaymentInput{
		Amount:      dec("60000"),
		PaymentMode: models.PaymentModeBankTransfer,
	})
	var rule utils.BusinessRuleError
	if !errors.As(err, &rule) {
		t.Fatalf("overpayment: got %v, want BusinessRuleError", err)
	}

	// 7) Partial payment to the supplier.
	purchase, err = models.RecordPurchasePayment(ctx, purchase.ID, &models.PaymentInput{
		Amount:      dec("20500"),
		PaymentMode: models.PaymentModeBankTransfer,
	})
	if err != nil {
		t.Fatalf("RecordPurchasePayment: %v", err)
	}
	if purchase.PaymentStatus != models.PaymentStatusPartial || !purchase.PendingAmount.Equal(dec("30000")) {
		t.Fatalf("after payment: status=%s pending=%s, want PARTIAL/30000", purchase.PaymentStatus, purchase.PendingAmount)
	}
	if bal := fetchPartyBalance(t, ctx, supplier.ID); !bal.Equal(dec("30000")) {
		t.Fatalf("supplier balance after payment = %s, want 30000", bal)
	}

	// 8) Full receipt from the customer settles the sale.
	sale, err = models.RecordSalePayment(ctx, sale.ID, &models.PaymentInput{
		Amount:      dec("35000"),
		PaymentMode: models.PaymentModeUpi,
	})
	if err != nil {
		t.Fatalf("RecordSalePayment: %v", err)
	}
	if sale.PaymentStatus != models.PaymentStatusPaid || !sale.PendingAmount.IsZero() {
		t.Fatalf("after receipt: status=%s pending=%s, want PAID/0", sale.PaymentStatus, sale.PendingAmount)
	}
	if bal := fetchPartyBalance(t, ctx, customer.ID); !bal.IsZero() {
		t.Fatalf("customer balance after receipt = %s, want 0", bal)
	}

	// 9) Deleting the settled sale returns the goods but keeps the gross
	// counter, since the sale really happened before it was voided.
	if _, err := models.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale: %v", err)
	}
	stock = fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	if !stock.CurrentQuantity.Equal(dec("100")) || !stock.TotalSold.Equal(dec("50")) {
		t.Fatalf("after delete: current=%s sold=%s, want 100/50", stock.CurrentQuantity, stock.TotalSold)
	}

	// 10) Every cached balance must still match its ledger.
	report, err := reports.GetReconciliationReport(ctx)
	if err != nil {
		t.Fatalf("GetReconciliationReport: %v", err)
	}
	if !report.Clean {
		for _, row := range report.Rows {
			if !row.Drift.IsZero() {
				t.Errorf("drift on %s %d (%s): %s", row.CounterpartyType, row.CounterpartyId, row.Name, row.Drift)
			}
		}
		t.Fatalf("reconciliation not clean after lifecycle")
	}

	summary, err := reports.GetStockSummary(ctx)
	if err != nil {
		t.Fatalf("GetStockSummary: %v", err)
	}
	if !summary.CurrentQuantity.Equal(dec("100")) || !summary.TotalPurchased.Equal(dec("100")) || !summary.TotalSold.Equal(dec("50")) {
		t.Fatalf("summary: current=%s purchased=%s sold=%s, want 100/100/50",
			summary.CurrentQuantity, summary.TotalPurchased, summary.TotalSold)
	}
}
