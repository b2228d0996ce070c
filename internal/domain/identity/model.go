package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/notification"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDeviceNotFound     = errors.New("trusted device not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	MFAMethodMail = "mail"
	MFAMethodSMS  = "sms"
)

// User is an account that can sign in and receive notifications.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Roles        []string  `db:"roles" json:"roles"`
	Permissions  []string  `db:"permissions" json:"permissions"`
	MFAEnabled   bool      `db:"mfa_enabled" json:"mfa_enabled"`
	MFAMethod    string    `db:"mfa_method" json:"mfa_method"`
	PushTokens   []string  `db:"push_tokens" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) Principal() *auth.Principal {
	return &auth.Principal{
		UserID:      u.ID,
		Email:       u.Email,
		Roles:       u.Roles,
		Permissions: u.Permissions,
	}
}

func (u *User) Recipient() notification.Recipient {
	return notification.Recipient{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Phone:      u.Phone,
		PushTokens: u.PushTokens,
	}
}

// TrustedDevice skips the MFA step for its user.
type TrustedDevice struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	DeviceID    string    `db:"device_id" json:"device_id"`
	DeviceName  string    `db:"device_name" json:"device_name,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string    `db:"user_agent" json:"user_agent,omitempty"`
	LastLoginAt time.Time `db:"last_login_at" json:"last_login_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

var knownRoles = map[string]bool{
	auth.RoleAdmin:         true,
	auth.RoleClinician:     true,
	auth.RoleNurse:         true,
	auth.RoleCHW:           true,
	auth.RoleFacilityStaff: true,
}

// ClinicalRoles receive broadcast emergency alerts.
var ClinicalRoles = []string{auth.RoleAdmin, auth.RoleClinician, auth.RoleNurse, auth.RoleCHW}

// CreateUserInput is used by the `user create` command.
type CreateUserInput struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Phone      string   `json:"phone"`
	Password   string   `json:"password"`
	Roles      []string `json:"roles"`
	MFAEnabled bool     `json:"mfa_enabled"`
	MFAMethod  string   `json:"mfa_method"`
}

func (in *CreateUserInput) Validate() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("email is invalid")
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if len(in.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	for _, r := range in.Roles {
		if !knownRoles[r] {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	switch in.MFAMethod {
	case "":
		in.MFAMethod = MFAMethodMail
	case MFAMethodMail:
	case MFAMethodSMS:
		if in.Phone == "" {
			return fmt.Errorf("phone is required for sms mfa")
		}
	default:
		return fmt.Errorf("mfa_method must be mail or sms")
	}
	return nil
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type VerifyMFARequest struct {
	MFAToken    string `json:"mfa_token"`
	Code        string `json:"code"`
	TrustDevice bool   `json:"trust_device"`
	DeviceID    string `json:"device_id"`
	DeviceName  string `json:"device_name"`
}

// ClientInfo describes where a login came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// LoginResult is either a session token or an MFA challenge.
type LoginResult struct {
	Token        string     `json:"token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	User         *User      `json:"user,omitempty"`
	MFARequired  bool       `json:"mfa_required"`
	MFAToken     string     `json:"mfa_token,omitempty"`
	MFAMethod    string     `json:"mfa_method,omitempty"`
	MFAExpiresAt *time.Time `json:"mfa_expires_at,omitempty"`
}
