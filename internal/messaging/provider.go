// Package messaging implements the outbound delivery pipeline: template
// and free-text sends over SMS/WhatsApp (Twilio) and push (Firebase), a
// persistent pending row per message, a fixed-schedule retry queue, and a
// signed webhook endpoint that advances delivery status on provider
// callbacks.
package messaging

import "context"

// SMSProvider is the raw, unprotected call to the SMS/WhatsApp-adjacent
// delivery provider. Service wraps an SMSProvider with a circuit breaker
// (see sendSMS); failed sends are retried by the RetryQueue sweep.
type SMSProvider interface {
	Send(ctx context.Context, to, body string) (messageID string, err error)
	Name() string
}

// PushProvider delivers a push notification to a device/topic. Used for
// the mobile leg of sendTemplate alongside the SMS provider.
type PushProvider interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) (messageID string, err error)
	Name() string
}
