package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

var (
	ErrChallengeNotFound  = errors.New("mfa challenge not found")
	ErrMFAExpired         = errors.New("mfa code expired")
	ErrMFAInvalidCode     = errors.New("mfa code invalid")
	ErrMFATooManyAttempts = errors.New("mfa attempt limit reached")
)

const mfaCodeDigits = 6

// Challenge is a pending one-time-code login step. Only a hash of the code
// is kept.
type Challenge struct {
	UserID    uuid.UUID `json:"user_id"`
	CodeHash  string    `json:"code_hash"`
	DeviceID  string    `json:"device_id,omitempty"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CodeStore keeps challenges for at most their TTL.
type CodeStore interface {
	Put(ctx context.Context, id string, ch Challenge, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Challenge, error)
	// IncrementAttempts records a failed verification and returns the new count.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// MFA issues and verifies time-boxed one-time codes.
type MFA struct {
	store       CodeStore
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewMFA(store CodeStore, ttl time.Duration, maxAttempts int) *MFA {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &MFA{store: store, ttl: ttl, maxAttempts: maxAttempts, now: time.Now}
}

func (m *MFA) TTL() time.Duration { return m.ttl }

// Issue creates a challenge for userID and returns its id and the plaintext
// code to deliver.
func (m *MFA) Issue(ctx context.Context, userID uuid.UUID, deviceID string) (challengeID, code string, expiresAt time.Time, err error) {
	code, err = generateCode(mfaCodeDigits)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	challengeID = uuid.NewString()
	expiresAt = m.now().Add(m.ttl)
	err = m.store.Put(ctx, challengeID, Challenge{
		UserID:    userID,
		CodeHash:  hashCode(challengeID, code),
		DeviceID:  deviceID,
		ExpiresAt: expiresAt,
	}, m.ttl)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("store challenge: %w", err)
	}
	return challengeID, code, expiresAt, nil
}

// Verify checks code against the challenge. A successful check consumes the
// challenge; reaching the attempt limit or expiry destroys it.
func (m *MFA) Verify(ctx context.Context, challengeID, code string) (*Challenge, error) {
	ch, err := m.store.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !m.now().Before(ch.ExpiresAt) {
		_ = m.store.Delete(ctx, challengeID)
		return nil, ErrMFAExpired
	}
	if ch.Attempts >= m.maxAttempts {
		_ = m.store.Delete(ctx, challengeID)
		return nil, ErrMFATooManyAttempts
	}

	want := []byte(ch.CodeHash)
	got := []byte(hashCode(challengeID, code))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		attempts, err := m.store.IncrementAttempts(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		if attempts >= m.maxAttempts {
			_ = m.store.Delete(ctx, challengeID)
			return nil, ErrMFATooManyAttempts
		}
		return nil, ErrMFAInvalidCode
	}

	if err := m.store.Delete(ctx, challengeID); err != nil {
		return nil, err
	}
	return ch, nil
}

func generateCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func hashCode(challengeID, code string) string {
	sum := sha256.Sum256([]byte(challengeID + ":" + code))
	return hex.EncodeToString(sum[:])
}
