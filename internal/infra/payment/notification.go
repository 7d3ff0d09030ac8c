package payment

import "course-billing/internal/domain/ports/adapter"

var _ adapter.NotificationVerifier = (*NotificationVerifier)(nil)

// NotificationVerifier authenticates inbound webhook payloads with the same
// signing engine used for outbound requests.
type NotificationVerifier struct {
	secret string
}

func NewNotificationVerifier(secret string) *NotificationVerifier {
	return &NotificationVerifier{secret: secret}
}

func (v *NotificationVerifier) Verify(params map[string]any, token string) bool {
	if token == "" {
		return false
	}
	return Verify(params, token, v.secret)
}
