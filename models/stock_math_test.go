package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCheckStockAvailability(t *testing.T) {
	record := &StockRecord{StockType: StockTypeRice, Variety: "Sona Masoori", CurrentQuantity: d("100")}

	avail := CheckStockAvailability(record, d("100"))
	if !avail.Available || !avail.Shortfall.IsZero() {
		t.Fatalf("exact quantity should be available, got %+v", avail)
	}

	avail = CheckStockAvailability(record, d("100.0001"))
	if avail.Available {
		t.Fatalf("over-ask should not be available")
	}
	if !avail.Shortfall.Equal(d("0.0001")) {
		t.Fatalf("shortfall = %s, want 0.0001", avail.Shortfall)
	}
	if !avail.CurrentQuantity.Equal(d("100")) {
		t.Fatalf("current quantity should be reported back, got %s", avail.CurrentQuantity)
	}

	empty := &StockRecord{StockType: StockTypePaddy, Variety: "IR64"}
	avail = CheckStockAvailability(empty, d("50"))
	if avail.Available || !avail.Shortfall.Equal(d("50")) {
		t.Fatalf("empty bucket: got %+v", avail)
	}
}

func TestMillingYield(t *testing.T) {
	// 100 bags of paddy milled into 65 bags of rice.
	if got := MillingYield(d("100"), d("65")); !got.Equal(d("65")) {
		t.Fatalf("yield = %s, want 65", got)
	}
	if got := MillingYield(d("150"), d("100")); !got.Equal(d("66.6667")) {
		t.Fatalf("yield = %s, want 66.6667", got)
	}
	if got := MillingYield(decimal.Zero, d("10")); !got.IsZero() {
		t.Fatalf("zero input quantity should yield zero, got %s", got)
	}
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 20},
		{-3, -5, 1, 20},
		{2, 50, 2, 50},
		{1, 10000, 1, 200},
	}
	for _, tc := range cases {
		gotPage, gotLimit := NormalizePage(tc.page, tc.limit)
		if gotPage != tc.wantPage || gotLimit != tc.wantLimit {
			t.Fatalf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tc.page, tc.limit, gotPage, gotLimit, tc.wantPage, tc.wantLimit)
		}
	}
}
