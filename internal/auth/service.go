package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"herbal-store/internal/clientstate"
	"herbal-store/internal/csrf"
	"herbal-store/internal/fingerprint"
	"herbal-store/internal/lockout"
	"herbal-store/internal/observability"
	"herbal-store/internal/tokens"
)

type Dependencies struct {
	Directory     Directory
	Tokens        *tokens.Manager
	Fingerprinter *fingerprint.Fingerprinter
	Machine       *lockout.Machine
	State         clientstate.Store
	CSRF          *csrf.Service
	Logger        *observability.Logger
}

type Service struct {
	directory   Directory
	tokens      *tokens.Manager
	fingerprint *fingerprint.Fingerprinter
	machine     *lockout.Machine
	lockouts    *lockout.Store
	state       clientstate.Store
	csrf        *csrf.Service
	logger      *observability.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	machine := deps.Machine
	if machine == nil {
		machine = lockout.NewMachine()
	}
	fp := deps.Fingerprinter
	if fp == nil {
		fp = fingerprint.New(nil, logger)
	}

	return &Service{
		directory:   deps.Directory,
		tokens:      deps.Tokens,
		fingerprint: fp,
		machine:     machine,
		lockouts:    lockout.NewStore(deps.State, logger),
		state:       deps.State,
		csrf:        deps.CSRF,
		logger:      logger,
	}
}

// Login runs one attempt: fingerprint the device, refuse while the browser
// is locked, check credentials, then update the lockout state and, on
// success, open a new session. Malformed input is rejected before the
// lockout state is touched.
func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	email := normalizeEmail(in.Email)
	if email == "" || strings.TrimSpace(in.Password) == "" || utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return Session{}, ErrInvalidCredentials
	}

	device := s.fingerprint.Fingerprint(in.Device)

	state, err := s.lockouts.Load(ctx, in.BrowserID)
	if err != nil {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return Session{}, err
	}

	now := s.machine.Now()
	if state.IsLocked(now) {
		observability.LoginAttempts.WithLabelValues("locked").Inc()
		s.logger.Warn("login_blocked", securityFields(in, email, map[string]any{
			"attempts":     state.Attempts,
			"locked_until": state.LockedUntil.UTC(),
		}))
		return Session{}, ErrLoginLocked{Until: *state.LockedUntil, Remaining: state.TimeRemaining(now)}
	}

	identity, err := s.directory.CheckCredentials(ctx, email, in.Password)
	if err != nil {
		return Session{}, s.recordFailure(ctx, in, email, state, err)
	}

	if err := s.lockouts.Save(ctx, in.BrowserID, s.machine.RecordSuccess(state)); err != nil {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return Session{}, err
	}
	if err := s.rememberEmail(ctx, in.BrowserID, email, in.RememberMe); err != nil {
		s.logger.Warn("remember_email_failed", map[string]any{"error": err.Error()})
	}

	sessionID := tokens.NewSessionID()
	pair, err := s.tokens.IssuePair(tokens.PairClaims{
		Subject:   identity.ID,
		Email:     identity.Email,
		Role:      identity.Role,
		Device:    device,
		SessionID: sessionID,
	})
	if err != nil {
		s.logIssuance(err, identity.ID)
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return Session{}, err
	}

	csrfToken, err := s.csrf.Issue(ctx, sessionID)
	if err != nil {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return Session{}, err
	}

	observability.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Info("login_succeeded", securityFields(in, email, map[string]any{
		"user_id":    identity.ID,
		"session_id": sessionID,
		"device":     device,
	}))

	return Session{
		Pair:      pair,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		User:      identity,
	}, nil
}

// recordFailure counts a rejected attempt. Collaborator errors count too:
// the browser cannot tell them apart from a wrong password.
func (s *Service) recordFailure(ctx context.Context, in LoginInput, email string, state lockout.State, cause error) error {
	next := s.machine.RecordFailure(state)
	if err := s.lockouts.Save(ctx, in.BrowserID, next); err != nil {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return err
	}

	fields := securityFields(in, email, map[string]any{
		"attempts":           next.Attempts,
		"attempts_remaining": next.AttemptsRemaining(),
		"reason":             "invalid_credentials",
	})
	if !errors.Is(cause, ErrInvalidCredentials) {
		fields["reason"] = "directory_error"
		fields["error"] = cause.Error()
	}
	s.logger.Warn("login_failed", fields)

	now := s.machine.Now()
	if next.IsLocked(now) {
		observability.LoginAttempts.WithLabelValues("locked").Inc()
		observability.Lockouts.Inc()
		s.logger.Warn("login_locked", securityFields(in, email, map[string]any{
			"attempts":     next.Attempts,
			"locked_until": next.LockedUntil.UTC(),
		}))
		return ErrLoginLocked{Until: *next.LockedUntil, Remaining: next.TimeRemaining(now)}
	}

	if !errors.Is(cause, ErrInvalidCredentials) {
		observability.LoginAttempts.WithLabelValues("error").Inc()
		return fmt.Errorf("check credentials: %w", cause)
	}

	observability.LoginAttempts.WithLabelValues("invalid").Inc()
	return RateLimitWarning{AttemptsRemaining: next.AttemptsRemaining()}
}

// securityFields adds who and where to a login event.
func securityFields(in LoginInput, email string, fields map[string]any) map[string]any {
	fields["email"] = email
	fields["browser_id"] = in.BrowserID
	fields["ip"] = in.ClientIP
	fields["user_agent"] = in.Device.UserAgent
	return fields
}

func (s *Service) rememberEmail(ctx context.Context, browserID, email string, remember bool) error {
	key := clientstate.BrowserKey(browserID, clientstate.KeySavedEmail)
	if remember {
		return s.state.Set(ctx, key, email, 0)
	}
	return s.state.Delete(ctx, key)
}

// Refresh mints a new pair for the session named by a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device fingerprint.Attributes) (tokens.Pair, error) {
	payload, err := s.tokens.VerifyRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		observability.TokenVerifications.WithLabelValues(string(tokens.KindRefresh), verifyResult(err)).Inc()
		return tokens.Pair{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	observability.TokenVerifications.WithLabelValues(string(tokens.KindRefresh), "valid").Inc()

	identity, err := s.directory.LookupIdentity(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, ErrUnknownIdentity) {
			return tokens.Pair{}, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
		}
		return tokens.Pair{}, err
	}

	pair, err := s.tokens.IssuePair(tokens.PairClaims{
		Subject:   identity.ID,
		Email:     identity.Email,
		Role:      identity.Role,
		Device:    s.fingerprint.Fingerprint(device),
		SessionID: payload.SessionID,
	})
	if err != nil {
		s.logIssuance(err, identity.ID)
		return tokens.Pair{}, err
	}

	return pair, nil
}

// StartSession opens an anonymous session with a fresh CSRF token.
func (s *Service) StartSession(ctx context.Context) (string, string, error) {
	sessionID := tokens.NewSessionID()
	token, err := s.csrf.Issue(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	return sessionID, token, nil
}

// Logout forgets the session's CSRF token. Issued tokens stay valid until
// they expire.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.csrf.Clear(ctx, sessionID)
}

func (s *Service) LockoutStatus(ctx context.Context, browserID string) (LockoutStatus, error) {
	state, err := s.lockouts.Load(ctx, browserID)
	if err != nil {
		return LockoutStatus{}, err
	}

	now := s.machine.Now()
	status := LockoutStatus{
		Status:            state.Status(now),
		Attempts:          state.Attempts,
		AttemptsRemaining: state.AttemptsRemaining(),
		Locked:            state.IsLocked(now),
	}
	if status.Locked {
		until := state.LockedUntil.UTC()
		status.LockedUntil = &until
		status.TimeRemaining = lockout.FormatRemaining(state.TimeRemaining(now))
	}

	return status, nil
}

func (s *Service) RememberedEmail(ctx context.Context, browserID string) (string, error) {
	email, err := s.state.Get(ctx, clientstate.BrowserKey(browserID, clientstate.KeySavedEmail))
	if err != nil {
		if errors.Is(err, clientstate.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return email, nil
}

func (s *Service) logIssuance(err error, userID string) {
	fields := map[string]any{"user_id": userID}
	if cause := errors.Unwrap(err); cause != nil {
		fields["cause"] = cause.Error()
	}
	s.logger.Error("token_issuance_failed", fields)
	observability.CaptureError(err, fields)
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, tokens.ErrInvalidFormat):
		return "invalid_format"
	case errors.Is(err, tokens.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, tokens.ErrInvalidTokenType):
		return "invalid_type"
	case errors.Is(err, tokens.ErrTokenExpired):
		return "expired"
	default:
		return "error"
	}
}
