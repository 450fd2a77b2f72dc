package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praxishealth/clinic-core/internal/domain/clinic"
)

// memStore is an in-memory ledger applying the same per-patient invariants
// the pgx store enforces transactionally.
type memStore struct {
	appointments map[int64]*AppointmentBilling
	entries      map[int64][]Entry
	snapshots    map[int64]float64
	patients     map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		appointments: map[int64]*AppointmentBilling{},
		entries:      map[int64][]Entry{},
		snapshots:    map[int64]float64{},
		patients:     map[int64]bool{},
	}
}

func (m *memStore) AppointmentBilling(_ context.Context, apptID int64) (*AppointmentBilling, error) {
	ab, ok := m.appointments[apptID]
	if !ok {
		return nil, &clinic.NotFoundError{Entity: "appointment", ID: apptID}
	}
	return ab, nil
}

func (m *memStore) AddCharge(_ context.Context, patientID int64, charge *ChargeEntry) (float64, error) {
	if !m.patients[patientID] {
		return 0, &clinic.NotFoundError{Entity: "patient", ID: patientID}
	}
	m.entries[patientID] = append(m.entries[patientID], Entry{
		Kind: KindCharge, Article: charge.Article,
		DoctorFee: charge.DoctorFee, PharmacyFee: charge.PharmacyFee,
		Charge: charge.TotalCharge, CreatedAt: time.Now(),
	})
	m.appointments[charge.ApptID].PriorCharges++
	balance := ComputeBalance(m.entries[patientID])
	m.snapshots[patientID] = balance
	return balance, nil
}

func (m *memStore) AddCredit(_ context.Context, patientID int64, amount float64) (float64, error) {
	if !m.patients[patientID] {
		return 0, &clinic.NotFoundError{Entity: "patient", ID: patientID}
	}
	balance := ComputeBalance(m.entries[patientID])
	if err := ValidatePayment(balance, amount); err != nil {
		return 0, err
	}
	m.entries[patientID] = append(m.entries[patientID], Entry{
		Kind: KindCredit, Article: "credit", Credit: amount, CreatedAt: time.Now(),
	})
	newBalance := ComputeBalance(m.entries[patientID])
	m.snapshots[patientID] = newBalance
	return newBalance, nil
}

func (m *memStore) Entries(_ context.Context, patientID int64) ([]Entry, error) {
	return m.entries[patientID], nil
}

func newEngineFixture() (*Engine, *memStore) {
	m := newMemStore()
	m.patients[1] = true
	m.appointments[42] = &AppointmentBilling{PatientID: 1, DoctorFee: 75, PharmacyFee: 45}
	return NewEngine(m, nil), m
}

func TestChargeRecordsFeeAndPrescriptionCosts(t *testing.T) {
	engine, store := newEngineFixture()

	res, err := engine.Charge(context.Background(), 42)
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if res.TotalCharge != 120 {
		t.Errorf("total charge = %v, want 120 (75 doctor + 45 pharmacy)", res.TotalCharge)
	}
	if res.Article != "Appt 1" {
		t.Errorf("article = %q, want \"Appt 1\"", res.Article)
	}
	if res.Balance != -120 {
		t.Errorf("balance = %v, want -120", res.Balance)
	}
	if store.snapshots[1] != -120 {
		t.Errorf("snapshot = %v, want -120", store.snapshots[1])
	}
}

func TestChargeArticleFollowsHistory(t *testing.T) {
	engine, store := newEngineFixture()
	store.appointments[43] = &AppointmentBilling{PatientID: 1, DoctorFee: 50}

	if _, err := engine.Charge(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	res, err := engine.Charge(context.Background(), 43)
	if err != nil {
		t.Fatal(err)
	}
	if res.Article != "Appt 2" {
		t.Errorf("second charge article = %q, want \"Appt 2\"", res.Article)
	}
}

func TestChargeUnknownAppointment(t *testing.T) {
	engine, _ := newEngineFixture()

	_, err := engine.Charge(context.Background(), 999)
	var notFound *clinic.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreditRestoresBalanceToZero(t *testing.T) {
	engine, store := newEngineFixture()

	if _, err := engine.Charge(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	res, err := engine.Credit(context.Background(), 1, 120)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if res.NewBalance != 0 {
		t.Errorf("balance after full payment = %v, want 0", res.NewBalance)
	}
	if store.snapshots[1] != 0 {
		t.Errorf("snapshot = %v, want 0", store.snapshots[1])
	}
}

func TestCreditRejectsOverpayment(t *testing.T) {
	engine, _ := newEngineFixture()

	if _, err := engine.Charge(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	_, err := engine.Credit(context.Background(), 1, 150)

	var over *OverpaymentError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverpaymentError, got %v", err)
	}
	if over.MaxAllowed != 120 {
		t.Errorf("maximum allowed = %v, want 120", over.MaxAllowed)
	}

	// A rejected payment must leave the ledger untouched.
	balance, err := engine.Balance(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if balance != -120 {
		t.Errorf("balance after rejection = %v, want -120", balance)
	}
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	engine, _ := newEngineFixture()

	for _, amount := range []float64{0, -25} {
		_, err := engine.Credit(context.Background(), 1, amount)
		var invalid *clinic.ValidationError
		if !errors.As(err, &invalid) {
			t.Errorf("Credit(%v): expected ValidationError, got %v", amount, err)
		}
	}
}

func TestBalanceIdentityAfterEveryOperation(t *testing.T) {
	engine, store := newEngineFixture()
	store.appointments[43] = &AppointmentBilling{PatientID: 1, DoctorFee: 60, PharmacyFee: 15}

	ops := []func() error{
		func() error { _, err := engine.Charge(context.Background(), 42); return err },
		func() error { _, err := engine.Credit(context.Background(), 1, 40); return err },
		func() error { _, err := engine.Charge(context.Background(), 43); return err },
		func() error { _, err := engine.Credit(context.Background(), 1, 100); return err },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d failed: %v", i, err)
		}
		entries, _ := store.Entries(context.Background(), 1)
		derived := ComputeBalance(entries)
		queried, err := engine.Balance(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if derived != queried {
			t.Errorf("after op %d: Balance() = %v, ledger sum = %v", i, queried, derived)
		}
		if store.snapshots[1] != derived {
			t.Errorf("after op %d: snapshot %v diverged from ledger %v", i, store.snapshots[1], derived)
		}
	}
}

func TestStatementForOrdersEntries(t *testing.T) {
	engine, _ := newEngineFixture()

	if _, err := engine.Charge(context.Background(), 42); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Credit(context.Background(), 1, 120); err != nil {
		t.Fatal(err)
	}

	lines, err := engine.StatementFor(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d statement lines, want 2", len(lines))
	}
	if lines[0].Kind != KindCharge || lines[1].Kind != KindCredit {
		t.Errorf("statement order wrong: %v then %v", lines[0].Kind, lines[1].Kind)
	}
	if lines[1].RunningBalance != 0 {
		t.Errorf("final running balance = %v, want 0", lines[1].RunningBalance)
	}
}
