package enums

import "fmt"

// NotificationType categorizes recipient-facing notifications.
type NotificationType string

const (
	NotificationTypeOrderStatus  NotificationType = "order_status"
	NotificationTypePayoutStatus NotificationType = "payout_status"
	NotificationTypePayment      NotificationType = "payment"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrderStatus,
	NotificationTypePayoutStatus,
	NotificationTypePayment,
}

// IsValid reports whether the value is a known NotificationType.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
