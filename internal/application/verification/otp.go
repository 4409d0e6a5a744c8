package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"nestfind-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpPrefix         = "otp:"
	otpAttemptsSuffix = ":attempts"
)

// OTPSender delivers a generated code to the party's registered contact.
// Delivery is a collaborator outside this core; the default logs the send.
type OTPSender interface {
	Send(ctx context.Context, attemptID uuid.UUID, partyRole, code string) error
}

// LogSender stands in for the delivery channel in dev and tests.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, attemptID uuid.UUID, partyRole, code string) error {
	log.Info().Str("attempt_id", attemptID.String()).Str("party_role", partyRole).Msg("OTP generated for delivery")
	return nil
}

// OTPStore keeps issued codes in Redis: a bcrypt hash of the code plus a
// verify-attempt counter, both under the code's TTL so expiry clears them
// together. Re-issuing overwrites the hash and resets the counter.
type OTPStore struct {
	Rdb         *redis.Client
	TTL         time.Duration
	MaxAttempts int
}

// Issue generates a 6-digit code, stores its hash and returns the plain code
// for delivery.
func (s *OTPStore) Issue(ctx context.Context, attemptID uuid.UUID) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	key := otpPrefix + attemptID.String()
	if err := s.Rdb.Set(ctx, key, string(hash), s.TTL).Err(); err != nil {
		return "", err
	}
	if err := s.Rdb.Set(ctx, key+otpAttemptsSuffix, 0, s.TTL).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// Check verifies a submitted code against the issued one. A wrong code counts
// one attempt; after MaxAttempts the code is dead until re-issued.
func (s *OTPStore) Check(ctx context.Context, attemptID uuid.UUID, code string) error {
	key := otpPrefix + attemptID.String()
	hash, err := s.Rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return &domain.PreconditionFailedError{Reason: "no active OTP, request a new code"}
	}
	if err != nil {
		return err
	}

	attempts, err := s.Rdb.Get(ctx, key+otpAttemptsSuffix).Int()
	if err != nil && err != redis.Nil {
		return err
	}
	if attempts >= s.MaxAttempts {
		return &domain.PreconditionFailedError{Reason: "OTP attempts exhausted, request a new code"}
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		if err := s.Rdb.Incr(ctx, key+otpAttemptsSuffix).Err(); err != nil {
			return err
		}
		return &domain.ValidationError{Field: "otp_code", Reason: "incorrect code"}
	}

	// Consumed: a verified code cannot be replayed.
	s.Rdb.Del(ctx, key, key+otpAttemptsSuffix)
	return nil
}
