package messaging

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebasePush is the PushProvider implementation used for the mobile
// leg of sendTemplate, alongside TwilioSMS.
type FirebasePush struct {
	client *messaging.Client
}

// NewFirebasePush initializes a Firebase Cloud Messaging client.
// credentialsPath may be empty to use default environment credentials.
func NewFirebasePush(ctx context.Context, credentialsPath string) (*FirebasePush, error) {
	var opt option.ClientOption
	if credentialsPath != "" {
		opt = option.WithCredentialsFile(credentialsPath)
	} else {
		opt = option.WithCredentialsJSON([]byte{})
	}

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase app init: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return &FirebasePush{client: client}, nil
}

func (f *FirebasePush) Name() string { return "firebase" }

// Send delivers a push notification to a single device token.
func (f *FirebasePush) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error) {
	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	id, err := f.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("firebase send: %w", err)
	}
	return id, nil
}
