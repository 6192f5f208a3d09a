package messaging

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMS is the primary SMSProvider implementation, wrapping the
// Twilio REST client for outbound SMS/WhatsApp-adjacent sends.
type TwilioSMS struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSMS creates a Twilio-backed SMSProvider.
func NewTwilioSMS(accountSid, authToken, fromNumber string) *TwilioSMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return &TwilioSMS{client: client, fromNumber: fromNumber}
}

func (t *TwilioSMS) Name() string { return "twilio" }

// Send posts body to Twilio's message API, returning the provider's
// message SID for later webhook correlation.
func (t *TwilioSMS) Send(ctx context.Context, to, body string) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.fromNumber)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio send: no message sid returned")
	}
	return *resp.Sid, nil
}
