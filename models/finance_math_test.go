package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestPurchaseNetAmount(t *testing.T) {
	cases := []struct {
		name                                      string
		total, commission, hamali, cartage, other string
		want                                      string
	}{
		{"no charges", "10000", "0", "0", "0", "0", "10000"},
		{"all charges add", "10000", "150", "200", "300", "50", "10700"},
		{"fractional", "1234.5678", "12.34", "0", "0", "0.01", "1246.9178"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PurchaseNetAmount(d(tc.total), d(tc.commission), d(tc.hamali), d(tc.cartage), d(tc.other))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("PurchaseNetAmount = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSaleNetAmount(t *testing.T) {
	cases := []struct {
		name                            string
		total, gst, commission, deducts string
		want                            string
	}{
		{"plain", "50000", "0", "0", "0", "50000"},
		{"gst adds commission and deductions subtract", "50000", "2500", "500", "1000", "51000"},
		{"deductions can exceed gst", "100", "5", "0", "30", "75"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SaleNetAmount(d(tc.total), d(tc.gst), d(tc.commission), d(tc.deducts))
			if !got.Equal(d(tc.want)) {
				t.Fatalf("SaleNetAmount = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		name      string
		net, paid string
		want      PaymentStatus
	}{
		{"nothing paid", "1000", "0", PaymentStatusPending},
		{"partially paid", "1000", "400", PaymentStatusPartial},
		{"fully paid", "1000", "1000", PaymentStatusPaid},
		{"overpaid still paid", "1000", "1000.01", PaymentStatusPaid},
		{"zero net with zero paid", "0", "0", PaymentStatusPaid},
		{"tiny partial", "1000", "0.01", PaymentStatusPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePaymentStatus(d(tc.net), d(tc.paid))
			if got != tc.want {
				t.Fatalf("DerivePaymentStatus(%s, %s) = %s, want %s", tc.net, tc.paid, got, tc.want)
			}
		})
	}
}

func TestLedgerSignedAmount(t *testing.T) {
	payable := LedgerEntry{Kind: LedgerEntryKindPayableDelta, Amount: d("250.50")}
	if !payable.SignedAmount().Equal(d("250.50")) {
		t.Fatalf("payable delta should keep its sign, got %s", payable.SignedAmount())
	}
	receivable := LedgerEntry{Kind: LedgerEntryKindReceivableDelta, Amount: d("250.50")}
	if !receivable.SignedAmount().Equal(d("-250.50")) {
		t.Fatalf("receivable delta should negate, got %s", receivable.SignedAmount())
	}
}

func TestReverseKindIsAnInvolution(t *testing.T) {
	for _, k := range []LedgerEntryKind{LedgerEntryKindPayableDelta, LedgerEntryKindReceivableDelta} {
		flipped := reverseKind(k)
		if flipped == k {
			t.Fatalf("reverseKind(%s) did not flip", k)
		}
		if reverseKind(flipped) != k {
			t.Fatalf("reverseKind twice should round-trip, got %s", reverseKind(flipped))
		}
	}
	// A reversed entry must cancel the original exactly.
	orig := LedgerEntry{Kind: LedgerEntryKindPayableDelta, Amount: d("99.99")}
	rev := LedgerEntry{Kind: reverseKind(orig.Kind), Amount: orig.Amount}
	if !orig.SignedAmount().Add(rev.SignedAmount()).IsZero() {
		t.Fatalf("reversal did not cancel: %s + %s", orig.SignedAmount(), rev.SignedAmount())
	}
}

// Downstream consumers key on the reference type string, so an adjustment
// event must never masquerade as a transfer.
func TestAdjustmentReferenceTypeIsDistinct(t *testing.T) {
	if LedgerReferenceTypeAdjustment != "ADJUSTMENT" {
		t.Fatalf("adjustment reference = %q, want ADJUSTMENT", LedgerReferenceTypeAdjustment)
	}
	if LedgerReferenceTypeAdjustment == LedgerReferenceTypeTransfer {
		t.Fatal("adjustment reference must differ from transfer")
	}
}

func TestBrokerCommissionFor(t *testing.T) {
	broker := &Broker{CommissionRate: d("1.5")}

	if got := BrokerCommissionFor(broker, d("777"), d("100000")); !got.Equal(d("777")) {
		t.Fatalf("explicit commission should win, got %s", got)
	}
	if got := BrokerCommissionFor(broker, decimal.Zero, d("100000")); !got.Equal(d("1500")) {
		t.Fatalf("rate commission = %s, want 1500", got)
	}
	if got := BrokerCommissionFor(nil, decimal.Zero, d("100000")); !got.IsZero() {
		t.Fatalf("no broker should mean zero commission, got %s", got)
	}
	if got := BrokerCommissionFor(&Broker{}, decimal.Zero, d("100000")); !got.IsZero() {
		t.Fatalf("zero rate should mean zero commission, got %s", got)
	}
	// Rounding stays at 4 decimal places.
	if got := BrokerCommissionFor(&Broker{CommissionRate: d("0.3333")}, decimal.Zero, d("10001")); !got.Equal(d("33.3333")) {
		t.Fatalf("rounded commission = %s, want 33.3333", got)
	}
}
