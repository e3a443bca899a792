package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultAccessTTL  = 900 * time.Second
	DefaultRefreshTTL = 604800 * time.Second
)

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Manager binds the token primitives to a fixed set of secrets and TTLs.
type Manager struct {
	cfg Config
	now func() time.Time
}

type PairClaims struct {
	Subject   string
	Email     string
	Role      string
	Device    string
	SessionID string
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, fmt.Errorf("refresh ttl %s must exceed access ttl %s", cfg.RefreshTTL, cfg.AccessTTL)
	}

	return &Manager{cfg: cfg, now: time.Now}, nil
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

func (m *Manager) IssueAccess(claims AccessClaims) (Issued, error) {
	return IssueAccess(claims, m.cfg.AccessSecret, m.cfg.AccessTTL, m.now())
}

func (m *Manager) IssueRefresh(claims RefreshClaims) (Issued, error) {
	return IssueRefresh(claims, m.cfg.RefreshSecret, m.cfg.RefreshTTL, m.now())
}

// IssuePair mints the access and refresh tokens of one login session.
func (m *Manager) IssuePair(claims PairClaims) (Pair, error) {
	access, err := m.IssueAccess(AccessClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		Device:    claims.Device,
		SessionID: claims.SessionID,
	})
	if err != nil {
		return Pair{}, err
	}

	refresh, err := m.IssueRefresh(RefreshClaims{Subject: claims.Subject, SessionID: claims.SessionID})
	if err != nil {
		return Pair{}, err
	}

	accessPayload, err := m.VerifyAccess(access.Token)
	if err != nil {
		return Pair{}, issuanceFailed(KindAccess, err)
	}
	refreshPayload, err := m.VerifyRefresh(refresh.Token)
	if err != nil {
		return Pair{}, issuanceFailed(KindRefresh, err)
	}
	if !ValidateSession(accessPayload, refreshPayload) {
		return Pair{}, issuanceFailed(KindRefresh, errors.New("token pair does not share a session"))
	}

	return Pair{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresIn:    access.ExpiresIn,
		TokenType:    TokenTypeBearer,
	}, nil
}

func (m *Manager) VerifyAccess(token string) (Payload, error) {
	return Verify(token, m.cfg.AccessSecret, KindAccess, m.now())
}

func (m *Manager) VerifyRefresh(token string) (Payload, error) {
	return Verify(token, m.cfg.RefreshSecret, KindRefresh, m.now())
}

func (m *Manager) ShouldRefresh(token string, thresholdMinutes int) bool {
	return ShouldRefresh(token, m.cfg.AccessSecret, time.Duration(thresholdMinutes)*time.Minute, m.now())
}

func (m *Manager) IsExpired(exp int64) bool {
	return exp < m.now().Unix()
}

func (m *Manager) TimeUntilExpiration(exp int64) time.Duration {
	remaining := time.Unix(exp, 0).Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSession reports whether access and refresh belong to the same
// login: same subject and session, distinct token ids.
func ValidateSession(access, refresh Payload) bool {
	return access.Subject == refresh.Subject &&
		access.SessionID == refresh.SessionID &&
		access.ID != refresh.ID
}
