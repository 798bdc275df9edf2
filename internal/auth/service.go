// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/keyward/keyward/pkg/errutil"
)

// Default lifetimes, matching the deployed configuration.
const (
	DefaultShortSessionTTL = time.Hour
	DefaultLongSessionTTL  = 30 * 24 * time.Hour
	DefaultTokenTTL        = time.Hour
)

// Flow names reported to a FlowObserver.
const (
	FlowRegister             = "register"
	FlowLogin                = "login"
	FlowVerifyEmail          = "verify_email"
	FlowResendVerification   = "resend_verification"
	FlowRequestPasswordReset = "request_password_reset"
	FlowConfirmPasswordReset = "confirm_password_reset"
)

// OutcomeSuccess is the outcome label for a completed flow.
const OutcomeSuccess = "success"

// dummyPasswordHash is verified when no user matches, so response time does not
// reveal whether an email is registered. It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// FlowObserver receives the outcome of every flow invocation.
type FlowObserver interface {
	ObserveFlow(flow, outcome string)
}

// ServiceConfig holds flow lifetimes.
type ServiceConfig struct {
	ShortSessionTTL time.Duration
	LongSessionTTL  time.Duration
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// DefaultServiceConfig returns the default lifetimes.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ShortSessionTTL: DefaultShortSessionTTL,
		LongSessionTTL:  DefaultLongSessionTTL,
		VerificationTTL: DefaultTokenTTL,
		ResetTTL:        DefaultTokenTTL,
	}
}

// Validate checks that every lifetime is positive.
func (c ServiceConfig) Validate() error {
	for name, ttl := range map[string]time.Duration{
		"short_session_ttl": c.ShortSessionTTL,
		"long_session_ttl":  c.LongSessionTTL,
		"verification_ttl":  c.VerificationTTL,
		"reset_ttl":         c.ResetTTL,
	} {
		if ttl <= 0 {
			return oops.Code("AUTH_SERVICE_INVALID").With(name, ttl.String()).Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Service runs the user-facing authentication flows.
type Service struct {
	store    CredentialStore
	tokens   *TokenManager
	hasher   PasswordHasher
	notifier *Notifier
	cfg      ServiceConfig
	logger   *slog.Logger
	observer FlowObserver
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithObserver sets the flow outcome observer.
func WithObserver(observer FlowObserver) ServiceOption {
	return func(s *Service) { s.observer = observer }
}

// WithClock overrides the clock used for session expiry.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(
	store CredentialStore,
	tokens *TokenManager,
	hasher PasswordHasher,
	notifier *Notifier,
	cfg ServiceConfig,
	opts ...ServiceOption,
) (*Service, error) {
	if store == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("credential store is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token manager is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if notifier == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("notifier is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an unverified user and emails a verification link.
// If sending fails the user and token stay persisted and an error is returned.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user *User, err error) {
	defer func() { s.observe(FlowRegister, err) }()

	if errs := ValidateRegistration(in.Username, in.Email, in.Password); len(errs) > 0 {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").Wrap(errs)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err = NewUser(in.Username, in.Email, hash, s.now())
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "new user").Wrap(err)
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			return nil, oops.Code("USER_USERNAME_TAKEN").With("field", "username").Errorf("username already taken")
		case errors.Is(err, ErrDuplicateEmail):
			return nil, oops.Code("USER_EMAIL_TAKEN").With("field", "email").Errorf("email already taken")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// LoginInput carries login credentials.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

// Login checks credentials and creates a session. No session is created on failure.
func (s *Service) Login(ctx context.Context, in LoginInput) (user *User, session *Session, err error) {
	defer func() { s.observe(FlowLogin, err) }()

	var errs FieldErrors
	errs = append(errs, ValidateEmail("email", in.Email)...)
	if in.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: MsgEmpty})
	}
	if len(errs) > 0 {
		return nil, nil, oops.Code("AUTH_VALIDATION_FAILED").Wrap(errs)
	}

	user, lookupErr := s.store.GetUserByEmail(ctx, in.Email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	// Verify against a real or dummy hash on every path so timing does not
	// depend on whether the account exists or is verified.
	targetHash := dummyPasswordHash
	if user != nil {
		targetHash = user.PasswordHash
	}
	valid, verifyErr := s.hasher.Verify(in.Password, targetHash)

	if lookupErr != nil {
		return nil, nil, oops.Code("AUTH_EMAIL_NOT_FOUND").With("field", "email").Errorf("email does not exist")
	}
	if !user.EmailVerified {
		return nil, nil, oops.Code("AUTH_NOT_VERIFIED").
			With("field", "email").
			With("user_id", user.ID.String()).
			Errorf("email not verified")
	}
	if verifyErr != nil {
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !valid {
		return nil, nil, oops.Code("AUTH_INVALID_CREDENTIALS").With("field", "auth").Errorf("invalid user credential")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, in.Password)
	}

	ttl := s.cfg.ShortSessionTTL
	if in.RememberMe {
		ttl = s.cfg.LongSessionTTL
	}

	session, err = NewSession(user.ID, DefaultSessionData, s.now().Add(ttl))
	if err != nil {
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "new session").Wrap(err)
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, nil, oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return user, session, nil
}

// upgradeHash re-hashes a legacy password hash. Login succeeds regardless.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.store.UpdatePassword(ctx, user.ID, newHash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"operation", "upgrade_hash",
			"user_id", user.ID.String(),
			"error", err.Error())
		return
	}
	user.PasswordHash = newHash
}

// VerifyEmail consumes a verification token and marks its owner verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { s.observe(FlowVerifyEmail, err) }()

	userID, err := s.tokens.ValidateAndConsume(ctx, TokenVerification, token)
	if err != nil {
		return err
	}
	if err := s.store.MarkEmailVerified(ctx, userID); err != nil {
		return oops.Code("AUTH_VERIFY_EMAIL_FAILED").
			With("operation", "mark email verified").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// ResendVerification issues a fresh verification token for an unverified user.
func (s *Service) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.observe(FlowResendVerification, err) }()

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return oops.Code("AUTH_ALREADY_VERIFIED").With("field", "email").Errorf("email already verified")
	}
	return s.sendVerification(ctx, user)
}

// RequestPasswordReset emails a reset link to a verified user.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.observe(FlowRequestPasswordReset, err) }()

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.EmailVerified {
		return oops.Code("AUTH_NOT_VERIFIED").
			With("field", "email").
			With("user_id", user.ID.String()).
			Errorf("email not verified")
	}

	token, err := s.tokens.Issue(ctx, TokenPasswordReset, user.ID, s.cfg.ResetTTL)
	if err != nil {
		return oops.Code("AUTH_RESET_REQUEST_FAILED").With("operation", "issue token").Wrap(err)
	}
	if err := s.notifier.SendResetPassword(ctx, user, token); err != nil {
		return oops.Code("AUTH_RESET_REQUEST_FAILED").
			With("operation", "send reset email").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// ConfirmPasswordReset consumes a reset token and replaces its owner's password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.observe(FlowConfirmPasswordReset, err) }()

	if errs := ValidatePassword("password", newPassword); len(errs) > 0 {
		return oops.Code("AUTH_VALIDATION_FAILED").Wrap(errs)
	}

	userID, err := s.tokens.ValidateAndConsume(ctx, TokenPasswordReset, token)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return oops.Code("AUTH_RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// CurrentUser returns the user behind an authenticated identity.
func (s *Service) CurrentUser(ctx context.Context, id Identity) (*User, error) {
	user, err := s.store.GetUserByID(ctx, id.UserID)
	if err != nil {
		return nil, oops.Code("AUTH_CURRENT_USER_FAILED").With("user_id", id.UserID.String()).Wrap(err)
	}
	return user, nil
}

// PruneResult reports rows removed by PruneExpired.
type PruneResult struct {
	Sessions int64
	Tokens   int64
}

// PruneExpired deletes expired sessions and tokens. It is never called by a flow.
func (s *Service) PruneExpired(ctx context.Context) (PruneResult, error) {
	var res PruneResult
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return res, oops.Code("AUTH_PRUNE_FAILED").With("operation", "delete expired sessions").Wrap(err)
	}
	res.Sessions = n

	res.Tokens, err = s.tokens.PruneExpired(ctx)
	if err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*User, error) {
	if errs := ValidateEmail("email", email); len(errs) > 0 {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").Wrap(errs)
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_EMAIL_NOT_FOUND").With("field", "email").Errorf("email does not exist")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("operation", "get user by email").Wrap(err)
	}
	return user, nil
}

func (s *Service) sendVerification(ctx context.Context, user *User) error {
	token, err := s.tokens.Issue(ctx, TokenVerification, user.ID, s.cfg.VerificationTTL)
	if err != nil {
		return oops.Code("AUTH_VERIFICATION_FAILED").With("operation", "issue token").Wrap(err)
	}
	if err := s.notifier.SendVerification(ctx, user, token); err != nil {
		return oops.Code("AUTH_VERIFICATION_FAILED").
			With("operation", "send verification email").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

func (s *Service) observe(flow string, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveFlow(flow, OutcomeOf(err))
}

// OutcomeOf returns OutcomeSuccess for nil, the oops code when present, or "error".
func OutcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if code := errutil.Code(err); code != "" {
		return code
	}
	return "error"
}
