package adapter

// NotificationVerifier authenticates an inbound provider notification by its
// signature token. params is the decoded payload without the token field.
type NotificationVerifier interface {
	Verify(params map[string]any, token string) bool
}
