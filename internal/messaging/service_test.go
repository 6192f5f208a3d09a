package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSMS struct {
	mu        sync.Mutex
	sendCalls int
	failNext  int
	messageID string
	lastTo    string
	lastBody  string
}

func (f *fakeSMS) Name() string { return "fake-sms" }

func (f *fakeSMS) Send(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.lastTo = to
	f.lastBody = body
	if f.failNext > 0 {
		f.failNext--
		return "", errors.New("provider unavailable")
	}
	return f.messageID, nil
}

type fakePush struct {
	sendCalls int
	err       error
}

func (f *fakePush) Name() string { return "fake-push" }

func (f *fakePush) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) (string, error) {
	f.sendCalls++
	if f.err != nil {
		return "", f.err
	}
	return "push-msg-1", nil
}

type fakeStore struct {
	mu      sync.Mutex
	created []*models.RideNotification
	sent    map[uuid.UUID]string
	failed  map[uuid.UUID]int
	final   map[uuid.UUID]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sent:   map[uuid.UUID]string{},
		failed: map[uuid.UUID]int{},
		final:  map[uuid.UUID]string{},
	}
}

func (s *fakeStore) Create(ctx context.Context, n *models.RideNotification) (*models.RideNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.New()
	n.Status = models.DeliveryPending
	s.created = append(s.created, n)
	return n, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id uuid.UUID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = messageID
	return nil
}

func (s *fakeStore) MarkFailedAttempt(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id]++
	return nil
}

func (s *fakeStore) MarkTerminalFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final[id] = errMsg
	return nil
}

func (s *fakeStore) PendingRetries(ctx context.Context, maxRetries, limit int) ([]*models.RideNotification, error) {
	return nil, nil
}

func newTestService(st *fakeStore, sms *fakeSMS, fallback *fakeSMS, push *fakePush) *Service {
	var fb SMSProvider
	if fallback != nil {
		fb = fallback
	}
	return NewService(st, sms, fb, push, nil, DefaultConfig())
}

func TestService_AttemptSMS_SuccessMarksSent(t *testing.T) {
	st := newFakeStore()
	sms := &fakeSMS{messageID: "sid-1"}
	svc := newTestService(st, sms, nil, nil)

	n := &models.RideNotification{ID: uuid.New(), Channel: models.ChannelSMS, Recipient: "+15551230001", Body: "hello"}
	svc.attempt(context.Background(), n)

	assert.Equal(t, 1, sms.sendCalls)
	assert.Equal(t, "sid-1", st.sent[n.ID])
}

func TestService_AttemptSMS_FailureBelowCapIncrementsRetry(t *testing.T) {
	st := newFakeStore()
	sms := &fakeSMS{failNext: 1}
	svc := newTestService(st, sms, nil, nil)

	n := &models.RideNotification{ID: uuid.New(), Channel: models.ChannelSMS, Recipient: "+15551230001", Body: "hello", Retries: 0}
	svc.attempt(context.Background(), n)

	assert.Equal(t, 1, st.failed[n.ID])
	_, wasTerminal := st.final[n.ID]
	assert.False(t, wasTerminal)
}

func TestService_AttemptSMS_ExhaustedRetriesFallsBackThenFails(t *testing.T) {
	st := newFakeStore()
	sms := &fakeSMS{failNext: 1}
	fallback := &fakeSMS{failNext: 1}
	svc := newTestService(st, sms, fallback, nil)

	// Retries already at MaxAttempts-1: this attempt is the last one.
	n := &models.RideNotification{ID: uuid.New(), Channel: models.ChannelSMS, Recipient: "+15551230001", Body: "hello", Retries: MaxAttempts - 1}
	svc.attempt(context.Background(), n)

	assert.Equal(t, 1, fallback.sendCalls)
	assert.Contains(t, st.final, n.ID)
}

func TestService_AttemptSMS_FallbackProviderRescuesExhaustedDelivery(t *testing.T) {
	st := newFakeStore()
	primary := &fakeSMS{failNext: 1}
	fallback := &fakeSMS{messageID: "fallback-sid"}
	svc := newTestService(st, primary, fallback, nil)

	n := &models.RideNotification{ID: uuid.New(), Channel: models.ChannelSMS, Recipient: "+15551230001", Body: "hello", Retries: MaxAttempts - 1}
	svc.attempt(context.Background(), n)

	assert.Equal(t, "fallback-sid", st.sent[n.ID])
	assert.NotContains(t, st.final, n.ID)
}

func TestService_AttemptPush_RoutesToPushProvider(t *testing.T) {
	st := newFakeStore()
	push := &fakePush{}
	svc := newTestService(st, &fakeSMS{}, nil, push)

	n := &models.RideNotification{ID: uuid.New(), Channel: models.ChannelPush, Recipient: "device-token-1", Body: "hello"}
	svc.attempt(context.Background(), n)

	assert.Equal(t, 1, push.sendCalls)
	assert.Equal(t, "push-msg-1", st.sent[n.ID])
}

func TestService_SendTemplate_SanitizesParamsBeforeRender(t *testing.T) {
	st := newFakeStore()
	sms := &fakeSMS{messageID: "sid-2"}
	svc := newTestService(st, sms, nil, nil)

	n, err := svc.SendTemplate(context.Background(), uuid.New(), nil, models.ChannelSMS, "+15551230002",
		"trip_cancelled", map[string]string{"reason": "rider <script>no-show</script>\nagain"})
	require.NoError(t, err)

	require.Len(t, st.created, 1)
	assert.NotContains(t, n.Body, "<")
	assert.NotContains(t, n.Body, ">")
	assert.NotContains(t, n.Body, "\n")
}

func TestService_SendText_Sanitizes(t *testing.T) {
	st := newFakeStore()
	svc := newTestService(st, &fakeSMS{}, nil, nil)

	n, err := svc.SendText(context.Background(), uuid.New(), nil, models.ChannelSMS, "+15551230003", "hi & bye\nagain")
	require.NoError(t, err)
	assert.Equal(t, "hi  bye again", n.Body)
}

func TestService_SendOTP_ReportsDeliveryThroughSink(t *testing.T) {
	st := newFakeStore()
	sms := &fakeSMS{messageID: "otp-sid"}
	svc := newTestService(st, sms, nil, nil)

	sink := &fakeOTPSink{}
	svc.otpSink = sink

	err := svc.SendOTP(context.Background(), "+15551230004", "123456")
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, sink.lastStatus)
	assert.Contains(t, sms.lastBody, "123456")
}

type fakeOTPSink struct {
	lastStatus models.DeliveryStatus
}

func (f *fakeOTPSink) MarkOTPDeliveryStatus(ctx context.Context, phone string, status models.DeliveryStatus, messageID *string) error {
	f.lastStatus = status
	return nil
}
