package user

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
)

type fixture struct {
	svc    *UserService
	users  *userrepo.MemoryUserRepo
	tokens *userrepo.MemoryTokenRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userrepo.NewMemoryUserRepo()
	tokens := userrepo.NewMemoryTokenRepo()
	signer, err := NewTokenSigner("test-key", "test")
	require.NoError(t, err)
	return &fixture{
		svc:    NewUserService(users, tokens, signer, BcryptHasher{Cost: bcrypt.MinCost}),
		users:  users,
		tokens: tokens,
	}
}

func (f *fixture) create(t *testing.T, name, email, password string) *entity.User {
	t.Helper()
	u, err := f.svc.Create(context.Background(), Input{"name": name, "email": email, "password": password})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	res, err := f.svc.Login(context.Background(), Input{"email": email, "password": password})
	require.NoError(t, err)
	return res.Token
}

func validationErrors(t *testing.T, err error) FieldErrors {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Errors
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, " João Silva ", "Joao@Email.com", "senha123")

	assert.Positive(t, u.ID)
	assert.Equal(t, "João Silva", u.Name)
	assert.Equal(t, "joao@email.com", u.Email)
	assert.NotEqual(t, "senha123", u.PasswordHash)
	assert.True(t, f.svc.hasher.Verify(u.PasswordHash, "senha123"))

	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "password")

	got, err := f.svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestLongPasswordRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("a", 80)

	u := f.create(t, "Ana", "ana@email.com", long)
	_, err := f.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	f.login(t, "ana@email.com", long)

	longer := strings.Repeat("b", 100)
	_, err = f.svc.Update(ctx, u.ID, Input{"password": longer})
	require.NoError(t, err)
	f.login(t, "ana@email.com", longer)

	_, err = f.svc.Login(ctx, Input{"email": "ana@email.com", "password": long})
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), Input{"email": "bad"})
	errs := validationErrors(t, err)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "password")
	assert.Equal(t, []string{"O campo email deve ser um endereço de e-mail válido."}, errs["email"])
}

func TestCreate_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Ana", "ana@email.com", "senha123")

	_, err := f.svc.Create(context.Background(), Input{"name": "Outra", "email": "ANA@email.com", "password": "senha123"})
	assert.Equal(t, []string{"O campo email já está sendo utilizado."}, validationErrors(t, err)["email"])
}

func TestCreate_EmailOfDeletedUserIsFree(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, "Ana", "ana@email.com", "senha123")
	require.NoError(t, f.svc.Delete(context.Background(), u.ID))

	again := f.create(t, "Ana", "ana@email.com", "senha123")
	assert.NotEqual(t, u.ID, again.ID)
}

// racyUsers reports every email as free so only the storage constraint catches duplicates.
type racyUsers struct{ *userrepo.MemoryUserRepo }

func (racyUsers) EmailTaken(context.Context, string, int64) (bool, error) { return false, nil }

func TestCreate_DuplicateCaughtByStorage(t *testing.T) {
	f := newFixture(t)
	f.svc.users = racyUsers{f.users}
	f.create(t, "Ana", "ana@email.com", "senha123")

	_, err := f.svc.Create(context.Background(), Input{"name": "Ana", "email": "ana@email.com", "password": "senha123"})
	assert.Equal(t, []string{"O campo email já está sendo utilizado."}, validationErrors(t, err)["email"])
}

func TestUpdate_Partial(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, "Ana", "ana@email.com", "senha123")

	got, err := f.svc.Update(context.Background(), u.ID, Input{"name": "New Name"})
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.Name)
	assert.Equal(t, "ana@email.com", got.Email)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
}

func TestUpdate_PasswordAndEmail(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, "Ana", "ana@email.com", "senha123")

	// keeping one's own email is not a collision
	_, err := f.svc.Update(context.Background(), u.ID, Input{"email": "ana@email.com"})
	require.NoError(t, err)

	got, err := f.svc.Update(context.Background(), u.ID, Input{"email": "nova@email.com", "password": "outrasenha"})
	require.NoError(t, err)
	assert.Equal(t, "nova@email.com", got.Email)
	assert.True(t, f.svc.hasher.Verify(got.PasswordHash, "outrasenha"))
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "Ana", "ana@email.com", "senha123")
	f.create(t, "Bia", "bia@email.com", "senha123")

	_, err := f.svc.Update(context.Background(), 999, Input{"name": "x"})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Update(context.Background(), a.ID, Input{"email": "bia@email.com"})
	assert.Equal(t, []string{"O campo email já está sendo utilizado."}, validationErrors(t, err)["email"])

	_, err = f.svc.Update(context.Background(), a.ID, Input{"name": nil})
	assert.Equal(t, []string{"O campo name é obrigatório."}, validationErrors(t, err)["name"])
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "Ana", "ana@email.com", "senha123")

	require.NoError(t, f.svc.Delete(ctx, u.ID))

	_, err := f.svc.Get(ctx, u.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, u.ID), ErrUserNotFound)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	trashed, err := f.users.GetByID(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, trashed.Trashed())
}

func TestLogin_BadCredentialsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Ana", "ana@email.com", "senha123")

	_, wrongPw := f.svc.Login(context.Background(), Input{"email": "ana@email.com", "password": "errada123"})
	_, unknown := f.svc.Login(context.Background(), Input{"email": "ninguem@email.com", "password": "senha123"})
	require.ErrorIs(t, wrongPw, ErrBadCredentials)
	require.ErrorIs(t, unknown, ErrBadCredentials)
}

func TestLogin_DeletedUserCannotLogin(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, "Ana", "ana@email.com", "senha123")
	require.NoError(t, f.svc.Delete(context.Background(), u.ID))

	_, err := f.svc.Login(context.Background(), Input{"email": "ana@email.com", "password": "senha123"})
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), Input{})
	errs := validationErrors(t, err)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestLogin_RevokesPreviousTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "Ana", "ana@email.com", "senha123")

	first := f.login(t, "ana@email.com", "senha123")
	second := f.login(t, "ANA@email.com", "senha123")
	assert.NotEqual(t, first, second)

	_, _, err := f.svc.Authenticate(ctx, first)
	require.ErrorIs(t, err, ErrUnauthenticated)

	got, tok, err := f.svc.Authenticate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.ID, tok.UserID)
	assert.NotNil(t, tok.LastUsedAt)
}

func TestLogin_RehashesWeakPassword(t *testing.T) {
	f := newFixture(t)
	u := f.create(t, "Ana", "ana@email.com", "senha123")

	f.svc.hasher = BcryptHasher{Cost: bcrypt.MinCost + 1}
	f.login(t, "ana@email.com", "senha123")

	stored, err := f.users.GetByID(context.Background(), u.ID, false)
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)

	// lowering the configured cost keeps the stronger hash
	f.svc.hasher = BcryptHasher{Cost: bcrypt.MinCost}
	f.login(t, "ana@email.com", "senha123")
	stored, err = f.users.GetByID(context.Background(), u.ID, false)
	require.NoError(t, err)
	cost, err = bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)
}

func TestLogoutAndLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Ana", "ana@email.com", "senha123")

	raw := f.login(t, "ana@email.com", "senha123")
	_, tok, err := f.svc.Authenticate(ctx, raw)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, tok))
	_, _, err = f.svc.Authenticate(ctx, raw)
	require.ErrorIs(t, err, ErrUnauthenticated)

	raw = f.login(t, "ana@email.com", "senha123")
	u, _, err := f.svc.Authenticate(ctx, raw)
	require.NoError(t, err)
	require.NoError(t, f.svc.LogoutAll(ctx, u))
	_, _, err = f.svc.Authenticate(ctx, raw)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.create(t, "Ana", "ana@email.com", "senha123")
	raw := f.login(t, "ana@email.com", "senha123")

	_, _, err := f.svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, ErrUnauthenticated)

	// a correctly signed secret that was never stored
	_, tok, err := f.svc.Authenticate(ctx, raw)
	require.NoError(t, err)
	forged, err := f.svc.signer.Sign(u.ID, tok.ID, tok.CreatedAt.Add(2*time.Second))
	require.NoError(t, err)
	_, _, err = f.svc.Authenticate(ctx, forged)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// tokens of a soft-deleted user stop working
	require.NoError(t, f.svc.Delete(ctx, u.ID))
	_, _, err = f.svc.Authenticate(ctx, raw)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

type brokenTokens struct{ *userrepo.MemoryTokenRepo }

func (brokenTokens) Find(context.Context, int64) (*entity.AccessToken, error) {
	return nil, errors.New("db down")
}

func TestAuthenticate_StoreFailureIsNotUnauthenticated(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Ana", "ana@email.com", "senha123")
	raw := f.login(t, "ana@email.com", "senha123")

	f.svc.tokens = brokenTokens{f.tokens}
	_, _, err := f.svc.Authenticate(context.Background(), raw)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}
