package billing

import (
	"testing"
	"time"
)

func charge(amount float64, at time.Time) Entry {
	return Entry{Kind: KindCharge, Charge: amount, CreatedAt: at}
}

func credit(amount float64, at time.Time) Entry {
	return Entry{Kind: KindCredit, Credit: amount, CreatedAt: at}
}

func TestComputeBalance(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		entries []Entry
		want    float64
	}{
		{"empty ledger", nil, 0},
		{"single charge", []Entry{charge(120, now)}, -120},
		{"charge then matching credit", []Entry{charge(120, now), credit(120, now)}, 0},
		{"partial payment", []Entry{charge(200, now), credit(80, now)}, -120},
		{"multiple appointments", []Entry{charge(75, now), charge(45, now), credit(100, now)}, -20},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeBalance(tc.entries); got != tc.want {
				t.Errorf("ComputeBalance = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStatementRunningBalance(t *testing.T) {
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	entries := []Entry{
		charge(120, base),
		credit(50, base.Add(time.Hour)),
		charge(30.555, base.Add(2*time.Hour)),
	}

	lines := Statement(entries)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	want := []float64{-120, -70, -100.56} // running balance, rounded to cents
	for i, line := range lines {
		if line.RunningBalance != want[i] {
			t.Errorf("line %d running balance = %v, want %v", i, line.RunningBalance, want[i])
		}
	}

	// The statement must stay consistent with the ledger reduction.
	final := ComputeBalance(entries)
	if diff := lines[2].RunningBalance - final; diff > 0.01 || diff < -0.01 {
		t.Errorf("final line %v diverges from ledger balance %v", lines[2].RunningBalance, final)
	}
}

func TestValidatePayment(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		amount  float64
		wantErr bool
	}{
		{"pay exact debt", -120, 120, false},
		{"partial payment", -120, 50, false},
		{"overpay in debt", -120, 150, true},
		{"any payment at zero balance", 0, 0.01, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayment(tc.balance, tc.amount)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidatePayment(%v, %v) err = %v, wantErr %v", tc.balance, tc.amount, err, tc.wantErr)
			}
		})
	}
}

func TestOverpaymentReportsCeiling(t *testing.T) {
	err := ValidatePayment(-120, 150)
	over, ok := err.(*OverpaymentError)
	if !ok {
		t.Fatalf("expected OverpaymentError, got %T", err)
	}
	if over.MaxAllowed != 120 {
		t.Errorf("maximum allowed = %v, want 120", over.MaxAllowed)
	}
	if over.CurrentBalance != -120 || over.Requested != 150 {
		t.Errorf("error context = %+v", over)
	}
}

func TestMaxPayment(t *testing.T) {
	if got := MaxPayment(-75.5); got != 75.5 {
		t.Errorf("MaxPayment(-75.5) = %v", got)
	}
	if got := MaxPayment(0); got != 0 {
		t.Errorf("MaxPayment(0) = %v", got)
	}
}

func TestChargeArticle(t *testing.T) {
	if got := ChargeArticle(0); got != "Appt 1" {
		t.Errorf("first charge article = %q", got)
	}
	if got := ChargeArticle(2); got != "Appt 3" {
		t.Errorf("third charge article = %q", got)
	}
}
