package billing

import "fmt"

// OverpaymentError rejects a payment that would push the patient's balance
// above zero. Reports the exact ceiling so the caller can resubmit.
type OverpaymentError struct {
	CurrentBalance float64
	Requested      float64
	MaxAllowed     float64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %.2f exceeds outstanding balance %.2f (maximum allowed %.2f)",
		e.Requested, e.CurrentBalance, e.MaxAllowed)
}
