package fulfillment

import "fmt"

// InsufficientStockError is a business-rule rejection, not a system fault.
// It carries both quantities so the pharmacist can react.
type InsufficientStockError struct {
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available, %d required", e.Available, e.Required)
}

// AlreadyFilledError rejects a second fill of the same prescription.
type AlreadyFilledError struct {
	PrescriptionID int64
}

func (e *AlreadyFilledError) Error() string {
	return fmt.Sprintf("prescription %d is already filled", e.PrescriptionID)
}

// CheckStock compares stock on hand against the prescribed quantity. There is
// no partial fulfillment: either the full quantity is available or the
// operation is rejected.
func CheckStock(available, required int) error {
	if available < required {
		return &InsufficientStockError{Available: available, Required: required}
	}
	return nil
}
