package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	appConfig "github.com/echelonmarket/echelon-api/config"
)

var (
	// ErrOTPNotFound means no code is outstanding for the key.
	ErrOTPNotFound = errors.New("no code issued for this order")
	// ErrOTPExpired means the code's window has passed; the caller must reissue.
	ErrOTPExpired = errors.New("code has expired, request a new one")
	// ErrOTPMismatch means the supplied code does not match the issued one.
	ErrOTPMismatch = errors.New("code does not match")
)

// OTPService issues and verifies the one-time delivery codes that
// gate the terminal Delivered transition. Each code is single-use:
// a successful verification deletes it.
type OTPService struct {
	store OTPStore
	ttl   time.Duration
}

// NewOTPService creates an OTP service over the given store.
func NewOTPService(store OTPStore, ttl time.Duration) *OTPService {
	return &OTPService{store: store, ttl: ttl}
}

// Issue generates a fresh 6-digit code for the key, overwriting any
// prior unverified code, and records the recipient's contact address
// with an absolute expiry.
func (s *OTPService) Issue(ctx context.Context, key OTPKey, recipient string) (OTPEntry, error) {
	code, err := generateCode()
	if err != nil {
		return OTPEntry{}, fmt.Errorf("failed to generate code: %w", err)
	}

	entry := OTPEntry{
		Code:      code,
		Recipient: recipient,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.store.Set(ctx, key, entry); err != nil {
		return OTPEntry{}, err
	}
	return entry, nil
}

// Verify checks the supplied code against the outstanding entry for
// key. On success the entry is deleted and its recipient returned so
// the caller can notify. Mismatches leave the entry untouched.
func (s *OTPService) Verify(ctx context.Context, key OTPKey, code string) (string, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "", ErrOTPNotFound
	}
	if entry.Expired() {
		// The store evicts on read, but delete explicitly so every
		// implementation ends up without the stale entry.
		if err := s.store.Delete(ctx, key); err != nil {
			return "", err
		}
		return "", ErrOTPExpired
	}
	if entry.Code != code {
		return "", ErrOTPMismatch
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return "", err
	}
	return entry.Recipient, nil
}

// generateCode produces a uniformly random 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var otpServiceInstance *OTPService

// InitOTPService builds the global OTP service. Redis backs the store
// when REDIS_ADDR is configured; otherwise codes live in process
// memory.
func InitOTPService(cfg *appConfig.Config) *OTPService {
	var store OTPStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		store = NewRedisOTPStore(client)
	} else {
		store = NewInMemoryOTPStore()
	}

	otpServiceInstance = NewOTPService(store, time.Duration(cfg.OTPTTLMinutes)*time.Minute)
	return otpServiceInstance
}

// GetOTPService returns the initialized OTP service instance
func GetOTPService() *OTPService {
	return otpServiceInstance
}

// SetOTPService sets the OTP service instance (primarily for testing)
func SetOTPService(s *OTPService) {
	otpServiceInstance = s
}
