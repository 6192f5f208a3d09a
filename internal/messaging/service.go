package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/richxcame/dispatch-core/pkg/resilience"
	"go.uber.org/zap"
)

// RetrySchedule is the fixed backoff the delivery contract specifies:
// three attempts, 5s then 15s then 60s apart. Deliberately not the
// exponential-with-jitter resilience.RetryConfig used elsewhere in this
// codebase — the contract calls for a deterministic schedule so retry
// timing is predictable in tests and on-call runbooks.
var RetrySchedule = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}

// MaxAttempts caps delivery attempts per message, matching len(RetrySchedule).
const MaxAttempts = 3

// Config holds the SMS breaker tunables.
type Config struct {
	BreakerFailureThreshold uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
}

// DefaultConfig holds the standard Twilio breaker tunables for this
// provider class.
func DefaultConfig() Config {
	return Config{
		BreakerFailureThreshold: 5,
		BreakerInterval:         60 * time.Second,
		BreakerTimeout:          30 * time.Second,
	}
}

// store is the persistence surface Service needs, narrowed from
// *Repository so tests can substitute an in-memory fake.
type store interface {
	Create(ctx context.Context, n *models.RideNotification) (*models.RideNotification, error)
	MarkSent(ctx context.Context, id uuid.UUID, messageID string) error
	MarkFailedAttempt(ctx context.Context, id uuid.UUID, errMsg string) error
	MarkTerminalFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	PendingRetries(ctx context.Context, maxRetries, limit int) ([]*models.RideNotification, error)
}

// Service implements sendTemplate/sendText over SMS and push, backed by a
// persistent pending row and a fixed-schedule retry queue. It also
// satisfies otp.Notifier so the OTP service can hand off delivery without
// depending on this package's concrete types.
type Service struct {
	repo        store
	primarySMS  SMSProvider
	fallbackSMS SMSProvider
	push        PushProvider
	breaker     *resilience.CircuitBreaker
	otpSink     OTPStatusSink
	cfg         Config
}

// OTPStatusSink lets Service report delivery progress back into the OTP
// row it didn't create, without importing the otp package (which already
// depends on this package's Notifier interface — importing back would
// cycle).
type OTPStatusSink interface {
	MarkOTPDeliveryStatus(ctx context.Context, phone string, status models.DeliveryStatus, messageID *string) error
}

// NewService wires a Repository, the SMS/push providers, and an optional
// fallback SMS provider used after the primary exhausts its retries.
func NewService(repo store, primarySMS, fallbackSMS SMSProvider, push PushProvider, otpSink OTPStatusSink, cfg Config) *Service {
	s := &Service{
		repo:        repo,
		primarySMS:  primarySMS,
		fallbackSMS: fallbackSMS,
		push:        push,
		otpSink:     otpSink,
		cfg:         cfg,
	}
	s.breaker = resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "messaging-sms",
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: 2,
	}, nil)
	return s
}

// SendOTP implements otp.Notifier: render the otp_code template and send
// over SMS, reporting delivery progress back through otpSink instead of a
// RideNotification row (the OTP row itself already tracks delivery_status).
func (s *Service) SendOTP(ctx context.Context, phone, code string) error {
	body := renderTemplate("otp_code", map[string]string{"code": code})
	messageID, err := s.sendSMS(ctx, phone, body)
	if err != nil {
		if s.otpSink != nil {
			if sinkErr := s.otpSink.MarkOTPDeliveryStatus(ctx, phone, models.DeliveryFailed, nil); sinkErr != nil {
				logger.WarnContext(ctx, "failed to record otp delivery failure", zap.Error(sinkErr))
			}
		}
		return err
	}
	if s.otpSink != nil {
		if sinkErr := s.otpSink.MarkOTPDeliveryStatus(ctx, phone, models.DeliverySent, &messageID); sinkErr != nil {
			logger.WarnContext(ctx, "failed to record otp delivery success", zap.Error(sinkErr))
		}
	}
	return nil
}

// SendTemplate renders template against sanitized params and delivers it
// over channel for a trip-scoped recipient, persisting a RideNotification
// row that the retry queue will pick up on failure.
func (s *Service) SendTemplate(ctx context.Context, tripID uuid.UUID, driverID *uuid.UUID, channel models.NotificationChannel, recipient, template string, params map[string]string) (*models.RideNotification, error) {
	body := renderTemplate(template, params)
	return s.send(ctx, tripID, driverID, channel, recipient, template, body)
}

// SendText delivers a free-text body, bypassing the template renderer but
// still subject to the same sanitization via sanitizeParam.
func (s *Service) SendText(ctx context.Context, tripID uuid.UUID, driverID *uuid.UUID, channel models.NotificationChannel, recipient, body string) (*models.RideNotification, error) {
	return s.send(ctx, tripID, driverID, channel, recipient, "", sanitizeParam(body))
}

func (s *Service) send(ctx context.Context, tripID uuid.UUID, driverID *uuid.UUID, channel models.NotificationChannel, recipient, template, body string) (*models.RideNotification, error) {
	n, err := s.repo.Create(ctx, &models.RideNotification{
		TripID:    tripID,
		DriverID:  driverID,
		Channel:   channel,
		Recipient: recipient,
		Template:  template,
		Body:      body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	go s.attempt(context.WithoutCancel(ctx), n)
	return n, nil
}

// attempt performs a single delivery attempt against whatever provider the
// notification's channel calls for, updating the row on success or
// failure. It never retries itself; the retry queue sweep re-invokes it
// on the fixed schedule.
func (s *Service) attempt(ctx context.Context, n *models.RideNotification) {
	var messageID string
	var err error

	switch n.Channel {
	case models.ChannelPush:
		if s.push == nil {
			err = fmt.Errorf("no push provider configured")
			break
		}
		messageID, err = s.push.Send(ctx, n.Recipient, "", n.Body, nil)
	default:
		messageID, err = s.sendSMS(ctx, n.Recipient, n.Body)
	}

	if err == nil {
		if markErr := s.repo.MarkSent(ctx, n.ID, messageID); markErr != nil {
			logger.WarnContext(ctx, "failed to mark notification sent", zap.Error(markErr))
		}
		return
	}

	logger.WarnContext(ctx, "notification delivery attempt failed",
		zap.String("notification_id", n.ID.String()), zap.Int("retries", n.Retries), zap.Error(err))

	if n.Retries+1 >= MaxAttempts {
		s.giveUp(ctx, n, err)
		return
	}

	if markErr := s.repo.MarkFailedAttempt(ctx, n.ID, err.Error()); markErr != nil {
		logger.WarnContext(ctx, "failed to record notification retry", zap.Error(markErr))
	}
}

// giveUp marks the notification terminally FAILED, falling back to a
// secondary SMS provider when one is configured and the channel is
// SMS-adjacent.
func (s *Service) giveUp(ctx context.Context, n *models.RideNotification, lastErr error) {
	if s.fallbackSMS != nil && n.Channel != models.ChannelPush {
		if messageID, fbErr := s.fallbackSMS.Send(ctx, n.Recipient, n.Body); fbErr == nil {
			if markErr := s.repo.MarkSent(ctx, n.ID, messageID); markErr != nil {
				logger.WarnContext(ctx, "failed to mark notification sent via fallback", zap.Error(markErr))
			}
			return
		}
	}
	if err := s.repo.MarkTerminalFailed(ctx, n.ID, lastErr.Error()); err != nil {
		logger.WarnContext(ctx, "failed to record terminal notification failure", zap.Error(err))
	}
}

// sendSMS routes through the circuit breaker so a failing provider stops
// accepting new attempts instead of piling up timeouts.
func (s *Service) sendSMS(ctx context.Context, to, body string) (string, error) {
	if s.primarySMS == nil {
		return "", fmt.Errorf("no sms provider configured")
	}
	result, err := s.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return s.primarySMS.Send(ctx, to, body)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
