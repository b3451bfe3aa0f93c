package enums

import "fmt"

// PaymentAttemptStatus tracks the lifecycle of a single payment attempt.
type PaymentAttemptStatus string

const (
	PaymentAttemptStatusPending   PaymentAttemptStatus = "pending"
	PaymentAttemptStatusSucceeded PaymentAttemptStatus = "succeeded"
	PaymentAttemptStatusFailed    PaymentAttemptStatus = "failed"
	PaymentAttemptStatusExpired   PaymentAttemptStatus = "expired"
)

var validPaymentAttemptStatuses = []PaymentAttemptStatus{
	PaymentAttemptStatusPending,
	PaymentAttemptStatusSucceeded,
	PaymentAttemptStatusFailed,
	PaymentAttemptStatusExpired,
}

// String implements fmt.Stringer.
func (s PaymentAttemptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentAttemptStatus.
func (s PaymentAttemptStatus) IsValid() bool {
	for _, candidate := range validPaymentAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentAttemptStatus converts raw input into a PaymentAttemptStatus.
func ParsePaymentAttemptStatus(value string) (PaymentAttemptStatus, error) {
	for _, candidate := range validPaymentAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment attempt status %q", value)
}
