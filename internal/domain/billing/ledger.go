// Package billing implements the patient billing ledger: append-only charges
// and credits, a derived balance, and the overpayment rule.
package billing

import (
	"fmt"
	"math"
	"time"
)

// EntryKind discriminates ledger entries.
type EntryKind string

const (
	KindCharge EntryKind = "charge"
	KindCredit EntryKind = "credit"
)

// ChargeEntry is one appointment's bill: the doctor's flat fee plus the cost
// of the appointment's filled prescriptions. Append-only.
type ChargeEntry struct {
	ID          int64     `json:"id"`
	ApptID      int64     `json:"appt_id"`
	DoctorFee   float64   `json:"doctor_bill"`
	PharmacyFee float64   `json:"pharm_bill"`
	TotalCharge float64   `json:"current_bill"`
	Article     string    `json:"article"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreditEntry is one patient payment. Append-only, always positive.
type CreditEntry struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patient_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is a single line of a patient's ledger in chronological order.
type Entry struct {
	ID          int64     `json:"id"`
	Kind        EntryKind `json:"type"`
	Article     string    `json:"article"`
	DoctorFee   float64   `json:"doctor_bill,omitempty"`
	PharmacyFee float64   `json:"pharm_bill,omitempty"`
	Charge      float64   `json:"charge,omitempty"`
	Credit      float64   `json:"credit,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// StatementLine is an Entry with the balance after applying it.
type StatementLine struct {
	Entry
	RunningBalance float64 `json:"current_bill"`
}

// ComputeBalance reduces a patient's ledger: sum of credits minus sum of
// charges. Negative means the patient owes money.
func ComputeBalance(entries []Entry) float64 {
	var balance float64
	for _, e := range entries {
		switch e.Kind {
		case KindCredit:
			balance += e.Credit
		case KindCharge:
			balance -= e.Charge
		}
	}
	return balance
}

// Statement annotates chronological entries with a running balance, rounded
// to cents for presentation only.
func Statement(entries []Entry) []StatementLine {
	lines := make([]StatementLine, 0, len(entries))
	var balance float64
	for _, e := range entries {
		switch e.Kind {
		case KindCredit:
			balance += e.Credit
		case KindCharge:
			balance -= e.Charge
		}
		lines = append(lines, StatementLine{Entry: e, RunningBalance: roundCents(balance)})
	}
	return lines
}

// MaxPayment is the largest credit a patient with the given balance may make
// without overpaying. Zero when nothing is owed.
func MaxPayment(balance float64) float64 {
	if balance >= 0 {
		return 0
	}
	return -balance
}

// ValidatePayment applies the overpayment rule: a credit must not push the
// balance above zero.
func ValidatePayment(balance, amount float64) error {
	if amount+balance > 0 {
		return &OverpaymentError{
			CurrentBalance: balance,
			Requested:      amount,
			MaxAllowed:     MaxPayment(balance),
		}
	}
	return nil
}

// ChargeArticle labels a charge by its ordinal in the patient's history.
// Purely descriptive.
func ChargeArticle(priorCharges int) string {
	return fmt.Sprintf("Appt %d", priorCharges+1)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
