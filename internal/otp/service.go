package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/pkg/apperr"
	"github.com/richxcame/dispatch-core/pkg/jwtkeys"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"github.com/richxcame/dispatch-core/pkg/middleware"
	"github.com/richxcame/dispatch-core/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the tunables named in the OTP contract.
type Config struct {
	MaxPerHour    int
	LockThreshold int
	LockMinutes   int
	CodeTTL       time.Duration
	JWTExpiryHrs  int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerHour:    3,
		LockThreshold: 5,
		LockMinutes:   60,
		CodeTTL:       5 * time.Minute,
		JWTExpiryHrs:  24,
	}
}

// Service implements requestOTP/verifyOTP.
type Service struct {
	repo       *Repository
	users      UserLookup
	notifier   Notifier
	keyManager *jwtkeys.Manager
	cfg        Config
}

// NewService wires a Repository, a UserLookup, a Notifier, and the
// signing key manager used to mint the access token on successful verify.
func NewService(repo *Repository, users UserLookup, notifier Notifier, keyManager *jwtkeys.Manager, cfg Config) *Service {
	return &Service{repo: repo, users: users, notifier: notifier, keyManager: keyManager, cfg: cfg}
}

// RequestOTPResult is requestOTP's response shape.
type RequestOTPResult struct {
	TTLSec int
}

// RequestOTP issues a fresh code for phone, enforcing the lock and
// fixed hourly rate limit before touching the unique-slot row.
func (s *Service) RequestOTP(ctx context.Context, phone string) (*RequestOTPResult, error) {
	lock, err := s.repo.GetLock(ctx, phone)
	if err != nil {
		return nil, apperr.NewInternal("failed to check otp lock", err)
	}
	if lock != nil && lock.LockedUntil != nil && lock.LockedUntil.After(time.Now()) {
		remaining := int(time.Until(*lock.LockedUntil).Minutes()) + 1
		return nil, apperr.NewLocked(fmt.Sprintf("too many failed attempts, try again in %d minute(s)", remaining), int(time.Until(*lock.LockedUntil).Seconds()))
	}

	windowStart := time.Now().Truncate(time.Hour)
	count, err := s.repo.IncrementRateLimit(ctx, phone, windowStart)
	if err != nil {
		return nil, apperr.NewInternal("failed to check otp rate limit", err)
	}
	if count > s.cfg.MaxPerHour {
		return nil, apperr.NewRateLimited("too many OTP requests this hour", secondsUntilNextHour())
	}

	code, err := generateCode()
	if err != nil {
		return nil, apperr.NewInternal("failed to generate otp code", err)
	}

	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.NewInternal("failed to hash otp code", err)
	}

	expiresAt := time.Now().Add(s.cfg.CodeTTL)
	if _, err := s.repo.ReplaceActiveOTP(ctx, phone, string(codeHash), expiresAt); err != nil {
		return nil, apperr.NewInternal("failed to issue otp", err)
	}

	if s.notifier != nil {
		go func() {
			deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := s.notifier.SendOTP(deliverCtx, phone, code); err != nil {
				logger.WarnContext(deliverCtx, "failed to enqueue otp delivery", zap.String("phone", maskPhone(phone)), zap.Error(err))
			}
		}()
	}

	return &RequestOTPResult{TTLSec: int(s.cfg.CodeTTL.Seconds())}, nil
}

// VerifyOTPResult is verifyOTP's response shape.
type VerifyOTPResult struct {
	Token string
}

// VerifyOTP checks code against the single active OTP for phone, minting
// an access token on a match and tightening the lock on a miss.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (*VerifyOTPResult, error) {
	lock, err := s.repo.GetLock(ctx, phone)
	if err != nil {
		return nil, apperr.NewInternal("failed to check otp lock", err)
	}
	if lock != nil && lock.LockedUntil != nil && lock.LockedUntil.After(time.Now()) {
		remaining := int(time.Until(*lock.LockedUntil).Minutes()) + 1
		return nil, apperr.NewLocked(fmt.Sprintf("too many failed attempts, try again in %d minute(s)", remaining), int(time.Until(*lock.LockedUntil).Seconds()))
	}

	active, err := s.repo.GetActiveOTP(ctx, phone)
	if err != nil {
		return nil, apperr.NewInternal("failed to load otp", err)
	}
	if active == nil {
		if _, lockErr := s.repo.RegisterFailedAttempt(ctx, phone, s.cfg.LockThreshold, time.Duration(s.cfg.LockMinutes)*time.Minute); lockErr != nil {
			logger.WarnContext(ctx, "failed to register failed otp attempt", zap.Error(lockErr))
		}
		return nil, apperr.NewBadRequest("no active otp for this phone number", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(active.CodeHash), []byte(code)); err != nil {
		if _, lockErr := s.repo.RegisterFailedAttempt(ctx, phone, s.cfg.LockThreshold, time.Duration(s.cfg.LockMinutes)*time.Minute); lockErr != nil {
			logger.WarnContext(ctx, "failed to register failed otp attempt", zap.Error(lockErr))
		}
		return nil, apperr.NewBadRequest("incorrect code", nil)
	}

	if err := s.repo.MarkVerified(ctx, active.ID); err != nil {
		return nil, apperr.NewInternal("failed to mark otp verified", err)
	}
	if err := s.repo.ResetLock(ctx, phone); err != nil {
		logger.WarnContext(ctx, "failed to reset otp lock", zap.Error(err))
	}

	user, err := s.users.GetOrCreateRiderByPhone(ctx, phone)
	if err != nil {
		return nil, apperr.NewInternal("failed to resolve user for phone", err)
	}

	var driverID *uuid.UUID
	if user.Role == models.RoleDriver {
		driverID, err = s.users.DriverIDForUser(ctx, user.ID)
		if err != nil {
			return nil, apperr.NewInternal("failed to resolve driver for user", err)
		}
	}

	token, err := s.mintToken(ctx, user.ID, user.Role, driverID)
	if err != nil {
		return nil, apperr.NewInternal("failed to mint access token", err)
	}

	return &VerifyOTPResult{Token: token}, nil
}

func (s *Service) mintToken(ctx context.Context, userID uuid.UUID, role models.UserRole, driverID *uuid.UUID) (string, error) {
	if s.keyManager == nil {
		return "", fmt.Errorf("jwt key manager is not configured")
	}
	if err := s.keyManager.EnsureRotation(ctx); err != nil {
		return "", fmt.Errorf("failed to rotate signing key: %w", err)
	}
	key, err := s.keyManager.CurrentSigningKey()
	if err != nil {
		return "", fmt.Errorf("failed to retrieve signing key: %w", err)
	}
	secretBytes, err := key.SecretBytes()
	if err != nil {
		return "", fmt.Errorf("invalid signing key: %w", err)
	}

	claims := &middleware.Claims{
		UserID:   userID,
		Role:     role,
		DriverID: driverID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * time.Duration(s.cfg.JWTExpiryHrs))),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID
	return token.SignedString(secretBytes)
}

// Sweep removes stale OTP and rate-limit rows, invoked on a schedule by Sweeper.
func (s *Service) Sweep(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.SweepExpired(ctx, olderThan)
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func secondsUntilNextHour() int {
	now := time.Now()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	return int(time.Until(nextHour).Seconds())
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return phone[:len(phone)-4] + "****"
}
