package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/notification"
)

// Notifier delivers notification events.
type Notifier interface {
	Send(ctx context.Context, n notification.Notification, recipients ...notification.Recipient) error
}

type Service struct {
	users    UserRepository
	devices  DeviceRepository
	mfa      *auth.MFA
	tokens   *auth.TokenIssuer
	notifier Notifier
	logger   zerolog.Logger
}

func NewService(users UserRepository, devices DeviceRepository, mfa *auth.MFA, tokens *auth.TokenIssuer, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		devices:  devices,
		mfa:      mfa,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// burnCompare spends the same time as a real password check so unknown
// emails are not distinguishable by latency.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("carelink-placeholder"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        in.Email,
		Name:         in.Name,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Roles:        in.Roles,
		Permissions:  []string{},
		MFAEnabled:   in.MFAEnabled,
		MFAMethod:    in.MFAMethod,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Strs("roles", u.Roles).Msg("user created")
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// Login checks credentials. Users with MFA enabled get a challenge unless
// they sign in from a device they previously trusted.
func (s *Service) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, ErrNotFound) {
		burnCompare(req.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil || !u.IsActive {
		s.logger.Warn().Str("user_id", u.ID.String()).Str("ip", client.IPAddress).Msg("failed login")
		return nil, ErrInvalidCredentials
	}

	if !u.MFAEnabled {
		return s.session(u)
	}

	if req.DeviceID != "" {
		d, err := s.devices.Get(ctx, u.ID, req.DeviceID)
		switch {
		case err == nil:
			if err := s.devices.Touch(ctx, d.ID, client.IPAddress, client.UserAgent); err != nil {
				s.logger.Warn().Err(err).Msg("touch trusted device")
			}
			return s.session(u)
		case !errors.Is(err, ErrDeviceNotFound):
			return nil, err
		}
	}

	challengeID, code, expiresAt, err := s.mfa.Issue(ctx, u.ID, req.DeviceID)
	if err != nil {
		return nil, err
	}
	method := u.MFAMethod
	if method == MFAMethodSMS && u.Phone == "" {
		method = MFAMethodMail
	}
	n := MFACodeNotification{Code: code, Method: method, ExpiresInMinutes: int(s.mfa.TTL() / time.Minute)}
	if err := s.notifier.Send(ctx, n, u.Recipient()); err != nil {
		return nil, fmt.Errorf("send mfa code: %w", err)
	}

	return &LoginResult{
		MFARequired:  true,
		MFAToken:     challengeID,
		MFAMethod:    method,
		MFAExpiresAt: &expiresAt,
	}, nil
}

// VerifyMFA completes a challenged login and optionally trusts the device.
func (s *Service) VerifyMFA(ctx context.Context, req VerifyMFARequest, client ClientInfo) (*LoginResult, error) {
	ch, err := s.mfa.Verify(ctx, req.MFAToken, req.Code)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInvalidCredentials
	}

	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = ch.DeviceID
	}
	if req.TrustDevice && deviceID != "" {
		d := &TrustedDevice{
			UserID:     u.ID,
			DeviceID:   deviceID,
			DeviceName: req.DeviceName,
			IPAddress:  client.IPAddress,
			UserAgent:  client.UserAgent,
		}
		if err := s.devices.Upsert(ctx, d); err != nil {
			return nil, err
		}
	}
	return s.session(u)
}

func (s *Service) session(u *User) (*LoginResult, error) {
	token, exp, err := s.tokens.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: &exp, User: u}, nil
}

func (s *Service) ListDevices(ctx context.Context, userID uuid.UUID) ([]*TrustedDevice, error) {
	return s.devices.ListByUser(ctx, userID)
}

func (s *Service) RevokeDevice(ctx context.Context, userID, id uuid.UUID) error {
	return s.devices.Delete(ctx, userID, id)
}

// Recipient resolves a user id to a notification recipient.
func (s *Service) Recipient(ctx context.Context, id uuid.UUID) (notification.Recipient, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return notification.Recipient{}, err
	}
	return u.Recipient(), nil
}

// RecipientsWithRoles lists active users holding any of roles.
func (s *Service) RecipientsWithRoles(ctx context.Context, roles []string) ([]notification.Recipient, error) {
	users, err := s.users.ListActiveByRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	out := make([]notification.Recipient, 0, len(users))
	for _, u := range users {
		out = append(out, u.Recipient())
	}
	return out, nil
}
