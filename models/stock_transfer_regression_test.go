package models_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/riceworks/millbooks_backend/models"
	"github.com/riceworks/millbooks_backend/models/reports"
	"github.com/riceworks/millbooks_backend/utils"
)

func TestMillingTransferRoundTrip(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	supplier, err := models.CreateParty(ctx, &models.NewParty{Name: "Paddy Supplier", Type: models.PartyTypeSupplier})
	if err != nil {
		t.Fatalf("CreateParty: %v", err)
	}
	_, err = models.CreatePurchase(ctx, &models.NewPurchase{
		PartyId:      supplier.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "IR64",
		Quantity:     dec("100"),
		PricePerUnit: dec("400"),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	// Milling 100 paddy into 65 rice.
	transfer, err := models.CreateStockTransfer(ctx, &models.NewStockTransfer{
		FromStockType: models.StockTypePaddy,
		FromVariety:   "IR64",
		FromQuantity:  dec("100"),
		ToStockType:   models.StockTypeRice,
		ToVariety:     "IR64 Raw",
		ToQuantity:    dec("65"),
	})
	if err != nil {
		t.Fatalf("CreateStockTransfer: %v", err)
	}
	if !strings.HasPrefix(transfer.TransferNumber, "TRF-") {
		t.Fatalf("transfer number = %q, want TRF- prefix", transfer.TransferNumber)
	}
	if !transfer.MillingYieldPct.Equal(dec("65")) {
		t.Fatalf("yield = %s, want 65", transfer.MillingYieldPct)
	}

	paddy := fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	rice := fetchStock(t, ctx, models.StockTypeRice, "IR64 Raw")
	if !paddy.CurrentQuantity.IsZero() {
		t.Fatalf("paddy after transfer = %s, want 0", paddy.CurrentQuantity)
	}
	if !rice.CurrentQuantity.Equal(dec("65")) {
		t.Fatalf("rice after transfer = %s, want 65", rice.CurrentQuantity)
	}

	// Transferring out of an empty bucket must hard-fail regardless of the
	// strict availability flag.
	_, err = models.CreateStockTransfer(ctx, &models.NewStockTransfer{
		FromStockType: models.StockTypePaddy,
		FromVariety:   "IR64",
		FromQuantity:  dec("10"),
		ToStockType:   models.StockTypeBran,
		ToVariety:     "IR64",
		ToQuantity:    dec("10"),
	})
	var insufficient utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("transfer from empty bucket: got %v, want InsufficientStockError", err)
	}

	// Deleting the transfer puts both buckets back.
	if _, err := models.DeleteStockTransfer(ctx, transfer.ID); err != nil {
		t.Fatalf("DeleteStockTransfer: %v", err)
	}
	paddy = fetchStock(t, ctx, models.StockTypePaddy, "IR64")
	rice = fetchStock(t, ctx, models.StockTypeRice, "IR64 Raw")
	if !paddy.CurrentQuantity.Equal(dec("100")) {
		t.Fatalf("paddy after delete = %s, want 100", paddy.CurrentQuantity)
	}
	if !rice.CurrentQuantity.IsZero() {
		t.Fatalf("rice after delete = %s, want 0", rice.CurrentQuantity)
	}
}

func TestLowStockAlertAfterAdjustment(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	record, err := models.InitializeStockRecord(ctx, &models.NewStockRecord{
		StockType:         models.StockTypeRice,
		Variety:           "Sona Masoori",
		OpeningQuantity:   dec("100"),
		LowStockThreshold: dec("20"),
	})
	if err != nil {
		t.Fatalf("InitializeStockRecord: %v", err)
	}

	// A second bucket with the same type and variety is rejected.
	_, err = models.InitializeStockRecord(ctx, &models.NewStockRecord{
		StockType: models.StockTypeRice,
		Variety:   "Sona Masoori",
	})
	var conflict utils.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate bucket: got %v, want ConflictError", err)
	}

	alerts, err := reports.GetLowStockAlerts(ctx)
	if err != nil {
		t.Fatalf("GetLowStockAlerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("no alert expected at 100 on hand, got %d", len(alerts))
	}

	// Write off 85 bags; the bucket drops below its threshold.
	_, err = models.AdjustStock(ctx, models.StockTypeRice, "Sona Masoori", dec("-85"), "moisture damage")
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	alerts, err = reports.GetLowStockAlerts(ctx)
	if err != nil {
		t.Fatalf("GetLowStockAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("want 1 alert, got %d", len(alerts))
	}
	if !alerts[0].CurrentQuantity.Equal(dec("15")) || !alerts[0].Shortfall.Equal(dec("5")) {
		t.Fatalf("alert: current=%s shortfall=%s, want 15/5", alerts[0].CurrentQuantity, alerts[0].Shortfall)
	}

	// Raising the threshold is tracked per bucket.
	if _, err := models.UpdateLowStockThreshold(ctx, record.ID, dec("50")); err != nil {
		t.Fatalf("UpdateLowStockThreshold: %v", err)
	}
	alerts, err = reports.GetLowStockAlerts(ctx)
	if err != nil {
		t.Fatalf("GetLowStockAlerts: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].Shortfall.Equal(dec("35")) {
		t.Fatalf("after threshold raise: %+v", alerts)
	}
}

// Ten workers race to sell 10 bags each from a bucket holding 60. The row
// lock serializes them, so exactly six succeed and the bucket lands at zero.
func TestConcurrentSalesSerializeOnStockRow(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	supplier, err := models.CreateParty(ctx, &models.NewParty{Name: "Bulk Supplier", Type: models.PartyTypeSupplier})
	if err != nil {
		t.Fatalf("CreateParty: %v", err)
	}
	customer, err := models.CreateParty(ctx, &models.NewParty{Name: "Bulk Buyer", Type: models.PartyTypeCustomer})
	if err != nil {
		t.Fatalf("CreateParty: %v", err)
	}
	_, err = models.CreatePurchase(ctx, &models.NewPurchase{
		PartyId:      supplier.ID,
		StockType:    models.StockTypeRice,
		Variety:      "Basmati",
		Quantity:     dec("60"),
		PricePerUnit: dec("900"),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.CreateSale(ctx, &models.NewSale{
				PartyId:      customer.ID,
				StockType:    models.StockTypeRice,
				Variety:      "Basmati",
				Quantity:     dec("10"),
				PricePerUnit: dec("1000"),
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var insufficient utils.InsufficientStockError
			if errors.As(err, &insufficient) {
				rejected++
				return
			}
			t.Errorf("unexpected sale error: %v", err)
		}()
	}
	wg.Wait()

	if succeeded != 6 || rejected != 4 {
		t.Fatalf("succeeded=%d rejected=%d, want 6/4", succeeded, rejected)
	}
	stock := fetchStock(t, ctx, models.StockTypeRice, "Basmati")
	if !stock.CurrentQuantity.IsZero() {
		t.Fatalf("final stock = %s, want 0", stock.CurrentQuantity)
	}
	if !stock.TotalSold.Equal(dec("60")) {
		t.Fatalf("total sold = %s, want 60", stock.TotalSold)
	}

	// The winning sales must sum to exactly the available quantity on the
	// ledger side too.
	if bal := fetchPartyBalance(t, ctx, customer.ID); !bal.Equal(dec("-60000")) {
		t.Fatalf("customer balance = %s, want -60000", bal)
	}
}

func TestConcurrentPaymentsPostPendingOnce(t *testing.T) {
	ctx, _ := setupIntegrationMill(t)

	supplier, err := models.CreateParty(ctx, &models.NewParty{Name: "Race Supplier", Type: models.PartyTypeSupplier})
	if err != nil {
		t.Fatalf("CreateParty: %v", err)
	}
	purchase, err := models.CreatePurchase(ctx, &models.NewPurchase{
		PartyId:      supplier.ID,
		StockType:    models.StockTypePaddy,
		Variety:      "Sona Masoori",
		Quantity:     dec("100"),
		PricePerUnit: dec("500"),
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	// Every worker tries to settle the full pending amount. The document row
	// lock must let exactly one through; the rest re-read pending = 0 and are
	// rejected, so the supplier balance moves once.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, rejected := 0, 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.RecordPurchasePayment(ctx, purchase.ID, &models.PaymentInput{
				Amount:      dec("50000"),
				PaymentMode: models.PaymentModeBankTransfer,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var rule utils.BusinessRuleError
			if errors.As(err, &rule) {
				rejected++
				return
			}
			t.Errorf("unexpected payment error: %v", err)
		}()
	}
	wg.Wait()

	if succeeded != 1 || rejected != 3 {
		t.Fatalf("succeeded=%d rejected=%d, want 1/3", succeeded, rejected)
	}

	settled, err := models.GetPurchase(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("GetPurchase: %v", err)
	}
	if settled.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want PAID", settled.PaymentStatus)
	}
	if !settled.PaidAmount.Equal(dec("50000")) || !settled.PendingAmount.IsZero() {
		t.Fatalf("paid = %s pending = %s, want 50000/0", settled.PaidAmount, settled.PendingAmount)
	}
	if bal := fetchPartyBalance(t, ctx, supplier.ID); !bal.IsZero() {
		t.Fatalf("supplier balance = %s, want 0", bal)
	}

	rec, err := reports.GetReconciliationReport(ctx)
	if err != nil {
		t.Fatalf("GetReconciliationReport: %v", err)
	}
	if !rec.Clean {
		t.Fatalf("ledger reconciliation reported drift: %+v", rec)
	}
}
