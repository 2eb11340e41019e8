package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-user-go/pkg/utilities"
)

// UserStore persists users. Misses are reported as sql.ErrNoRows and email
// collisions as repo.ErrDuplicateEmail.
type UserStore interface {
	List(ctx context.Context) ([]entity.User, error)
	GetByID(ctx context.Context, id int64, includeDeleted bool) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Create(ctx context.Context, u *entity.User) error
	Update(ctx context.Context, u *entity.User) error
	SoftDelete(ctx context.Context, id int64) error
}

// TokenStore persists access tokens.
type TokenStore interface {
	// ReplaceForUser revokes all tokens of t.UserID, then stores t.
	ReplaceForUser(ctx context.Context, t *entity.AccessToken) error
	Find(ctx context.Context, id int64) (*entity.AccessToken, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	RevokeOne(ctx context.Context, id int64) error
	RevokeAll(ctx context.Context, userID int64) (int64, error)
}

var (
	_ UserStore  = (*userrepo.UserRepo)(nil)
	_ UserStore  = (*userrepo.MemoryUserRepo)(nil)
	_ TokenStore = (*userrepo.TokenRepo)(nil)
	_ TokenStore = (*userrepo.MemoryTokenRepo)(nil)
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrBadCredentials  = errors.New("invalid credentials")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ValidationError carries the per-field messages of rejected input.
type ValidationError struct {
	Errors FieldErrors
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

func emailTakenError() *ValidationError {
	errs := FieldErrors{}
	errs.Add("email", message("email", "unique", ""))
	return &ValidationError{Errors: errs}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User      *entity.User `json:"user"`
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
}

// UserService orchestrates the user lifecycle and bearer token authentication.
type UserService struct {
	users     UserStore
	tokens    TokenStore
	signer    *TokenSigner
	hasher    PasswordHasher
	validator *Validator

	now    func() time.Time
	nextID func() int64

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(users UserStore, tokens TokenStore, signer *TokenSigner, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{
		users:     users,
		tokens:    tokens,
		signer:    signer,
		hasher:    hasher,
		validator: NewValidator(),
		now:       time.Now,
		nextID:    utilities.NextID,
	}
}

// List returns every user that is not soft-deleted.
func (s *UserService) List(ctx context.Context) ([]entity.User, error) {
	return s.users.List(ctx)
}

// Get returns a non-deleted user or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*entity.User, error) {
	u, err := s.users.GetByID(ctx, id, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Create validates in, hashes the password and stores a new user.
func (s *UserService) Create(ctx context.Context, in Input) (*entity.User, error) {
	errs := s.validator.Check(in, createRules, false)
	email := strings.ToLower(in.String("email"))
	if !errs.Has("email") {
		if err := s.checkEmailFree(ctx, errs, email, 0); err != nil {
			return nil, err
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	hash, err := s.hasher.Hash(in.String("password"))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{Name: in.String("name"), Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, emailTakenError()
		}
		return nil, err
	}
	return u, nil
}

// Update applies the fields present in in to user id and returns the
// reloaded user. Absent fields keep their stored value.
func (s *UserService) Update(ctx context.Context, id int64, in Input) (*entity.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := s.validator.Check(in, createRules, true)
	email := strings.ToLower(in.String("email"))
	if in.Has("email") && !errs.Has("email") {
		if err := s.checkEmailFree(ctx, errs, email, id); err != nil {
			return nil, err
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	if in.Has("name") {
		u.Name = in.String("name")
	}
	if in.Has("email") {
		u.Email = email
	}
	if pw := in.String("password"); pw != "" {
		hash, err := s.hasher.Hash(pw)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	if err := s.users.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrUserNotFound
		case errors.Is(err, userrepo.ErrDuplicateEmail):
			return nil, emailTakenError()
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes user id.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.users.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// Login checks credentials, revokes every existing token of the user and
// issues a new one. Unknown emails and wrong passwords both yield
// ErrBadCredentials.
func (s *UserService) Login(ctx context.Context, in Input) (*LoginResult, error) {
	if errs := s.validator.Check(in, loginRules, false); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	email := strings.ToLower(in.String("email"))
	password := in.String("password")

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// keep the response time close to the wrong-password path
			s.hasher.Verify(s.dummy(), password)
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}

	if s.hasher.NeedsRehash(u.PasswordHash) {
		if hash, hErr := s.hasher.Hash(password); hErr == nil {
			u.PasswordHash = hash
			_ = s.users.Update(ctx, u)
		}
	}

	token, err := s.issueToken(ctx, u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Token: token, TokenType: "Bearer"}, nil
}

// Logout revokes the token that authenticated the request.
func (s *UserService) Logout(ctx context.Context, t *entity.AccessToken) error {
	return s.tokens.RevokeOne(ctx, t.ID)
}

// LogoutAll revokes every token of u, including the current one.
func (s *UserService) LogoutAll(ctx context.Context, u *entity.User) error {
	_, err := s.tokens.RevokeAll(ctx, u.ID)
	return err
}

// Authenticate resolves a bearer secret to its user and token. Any secret that
// is malformed, revoked or owned by a deleted user yields ErrUnauthenticated.
func (s *UserService) Authenticate(ctx context.Context, raw string) (*entity.User, *entity.AccessToken, error) {
	userID, tokenID, err := s.signer.Parse(raw)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}
	t, err := s.tokens.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	if t.UserID != userID || !ConstantTimeCompare(t.TokenHash, hashToken(raw)) {
		return nil, nil, ErrUnauthenticated
	}
	u, err := s.users.GetByID(ctx, t.UserID, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	now := s.now()
	if err := s.tokens.Touch(ctx, t.ID, now); err == nil {
		t.LastUsedAt = &now
	}
	return u, t, nil
}

func (s *UserService) issueToken(ctx context.Context, u *entity.User) (string, error) {
	now := s.now()
	t := &entity.AccessToken{ID: s.nextID(), UserID: u.ID, Name: tokenName, CreatedAt: now}
	secret, err := s.signer.Sign(u.ID, t.ID, now)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	t.TokenHash = hashToken(secret)
	if err := s.tokens.ReplaceForUser(ctx, t); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return secret, nil
}

func (s *UserService) checkEmailFree(ctx context.Context, errs FieldErrors, email string, exceptID int64) error {
	taken, err := s.users.EmailTaken(ctx, email, exceptID)
	if err != nil {
		return err
	}
	if taken {
		errs.Add("email", message("email", "unique", ""))
	}
	return nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("not-a-real-password")
	})
	return s.dummyHash
}
