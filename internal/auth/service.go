// Package auth issues, validates and revokes opaque session tokens stored
// on the user row, and enforces role checks. Tokens are unguessable lookup
// keys with no decodable structure; the database is the single source of
// truth for session state.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"studentadmin/internal/apperr"
	"studentadmin/internal/config"
	"studentadmin/internal/store"
)

// Account roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// dummyHash is compared against when the username is unknown, so the
// unknown-user path costs roughly the same as a wrong-password check.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Identity is the authenticated caller produced by Authenticate. It is
// threaded explicitly into every subsequent authorization and service
// call; there is no ambient request state.
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Role      string
}

// Service implements registration and the session lifecycle.
type Service struct {
	repo             *Repository
	tokenTTL         time.Duration
	registrationMode string
	now              func() time.Time
}

// NewService creates an auth service. A non-positive ttl falls back to one
// hour.
func NewService(repo *Repository, ttl time.Duration, registrationMode string) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if registrationMode == "" {
		registrationMode = config.RegistrationBootstrap
	}
	return &Service{repo: repo, tokenTTL: ttl, registrationMode: registrationMode, now: time.Now}
}

// Register creates an account with a salted, irreversible password hash.
// Role defaults to user. In restricted mode requesting the admin role
// fails with Forbidden; bootstrap mode allows it so the first admin can be
// created.
func (s *Service) Register(ctx context.Context, username, password, role string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return apperr.BadRequest("username and password are required")
	}
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return apperr.BadRequest("unknown role")
	}
	if role == RoleAdmin && s.registrationMode == config.RegistrationRestricted {
		return apperr.Forbidden("admin registration is disabled")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("auth.register", err)
	}
	if err := s.repo.Create(ctx, username, string(hash), role); err != nil {
		if store.IsUniqueViolation(err) {
			return apperr.Conflict("username already exists")
		}
		return apperr.Internal("auth.register", err)
	}
	return nil
}

// Login verifies the credentials and issues a fresh opaque token with a
// fixed validity window, overwriting any prior token for the account.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.BadRequest("username and password are required")
	}

	u, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return Session{}, apperr.Internal("auth.login", err)
	}
	if u == nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return Session{}, apperr.Unauthorized("invalid username or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, apperr.Unauthorized("invalid username or password")
	}

	token := uuid.NewString()
	expiry := s.now().UTC().Add(s.tokenTTL)
	if err := s.repo.SetToken(ctx, u.ID, token, expiry); err != nil {
		return Session{}, apperr.Internal("auth.login", err)
	}
	return Session{Token: token, ExpiresAt: expiry, Role: u.Role}, nil
}

// Logout clears the session on whichever account holds token. A token that
// no account holds, including one already logged out, fails Unauthorized.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return apperr.Unauthorized("invalid or expired token")
	}
	cleared, err := s.repo.ClearTokenByValue(ctx, token)
	if err != nil {
		return apperr.Internal("auth.logout", err)
	}
	if !cleared {
		return apperr.Unauthorized("invalid or expired token")
	}
	return nil
}

// Authenticate resolves token to an identity. An expired token is cleared
// from the account as a side effect before failing, so it can never be
// used again. Validity is a fixed window: a successful call does not
// extend the token's life.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, apperr.Unauthorized("authentication token required")
	}
	u, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return Identity{}, apperr.Internal("auth.authenticate", err)
	}
	if u == nil {
		return Identity{}, apperr.Unauthorized("invalid or unknown token")
	}
	if !u.TokenExpiry.Valid || !s.now().Before(u.TokenExpiry.Time) {
		if err := s.repo.ClearTokenByID(ctx, u.ID); err != nil {
			return Identity{}, apperr.Internal("auth.authenticate", err)
		}
		return Identity{}, apperr.Unauthorized("token expired, please log in again")
	}
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

// Authorize is a pure role check, composed strictly after a successful
// Authenticate. Admins pass any requirement.
func Authorize(role, required string) error {
	if role == RoleAdmin || role == required {
		return nil
	}
	return apperr.Forbidden("admin privileges required")
}
