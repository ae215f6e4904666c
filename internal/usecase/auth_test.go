package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/azamatbayev/auth-service/internal/auth"
	"github.com/azamatbayev/auth-service/internal/entity"
	"github.com/azamatbayev/auth-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// fakeRepo is an in-memory Repository that mirrors the store's contract,
// including the conditional consume updates.
type fakeRepo struct {
	users   map[primitive.ObjectID]*entity.User
	revoked map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[primitive.ObjectID]*entity.User),
		revoked: make(map[string]bool),
	}
}

func (r *fakeRepo) CreateUser(_ context.Context, user *entity.User) (primitive.ObjectID, error) {
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicateEmail
		}
	}
	id := primitive.NewObjectID()
	stored := *user
	stored.ID = id
	r.users[id] = &stored
	return id, nil
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *fakeRepo) GetUserByID(_ context.Context, userID primitive.ObjectID) (*entity.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeRepo) SaveVerifyOtp(_ context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.VerifyOtp = code
	u.VerifyOtpExpiresAt = expiresAt
	return nil
}

func (r *fakeRepo) ConsumeVerifyOtp(_ context.Context, userID primitive.ObjectID, code string) error {
	u, ok := r.users[userID]
	if !ok || u.VerifyOtp == "" || u.VerifyOtp != code {
		return repository.ErrOtpMismatch
	}
	u.IsVerified = true
	u.VerifyOtp = ""
	u.VerifyOtpExpiresAt = time.Time{}
	return nil
}

func (r *fakeRepo) SaveResetOtp(_ context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.ResetOtp = code
	u.ResetOtpExpiresAt = expiresAt
	return nil
}

func (r *fakeRepo) ConsumeResetOtp(_ context.Context, userID primitive.ObjectID, code, passwordHash string) error {
	u, ok := r.users[userID]
	if !ok || u.ResetOtp == "" || u.ResetOtp != code {
		return repository.ErrOtpMismatch
	}
	u.Password = passwordHash
	u.ResetOtp = ""
	u.ResetOtpExpiresAt = time.Time{}
	return nil
}

func (r *fakeRepo) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if ttl > 0 {
		r.revoked[jti] = true
	}
	return nil
}

func (r *fakeRepo) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	return r.revoked[jti], nil
}

func (r *fakeRepo) mustFindByEmail(t *testing.T, email string) *entity.User {
	t.Helper()
	for _, u := range r.users {
		if u.Email == email {
			return u
		}
	}
	t.Fatalf("no user with email %q", email)
	return nil
}

// fakeMailer records sends and can be switched to fail.
type fakeMailer struct {
	sent []sentMail
	fail bool
}

type sentMail struct {
	to      string
	subject string
	body    string
}

func (m *fakeMailer) Send(toEmail, _, subject, body string) error {
	if m.fail {
		return errors.New("smtp connection refused")
	}
	m.sent = append(m.sent, sentMail{to: toEmail, subject: subject, body: body})
	return nil
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time { return c.current }

func newTestUsecase() (*AuthUsecase, *fakeRepo, *fakeMailer, *testClock) {
	repo := newFakeRepo()
	mail := &fakeMailer{}
	clock := &testClock{current: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	uc := NewAuthUsecase(repo, mail, auth.NewJWT("test-secret", 7*24*time.Hour), "Auth Service")
	uc.now = clock.Now

	otpQueue := []string{"481923", "750214", "316807", "902345"}
	uc.newOtp = func() (string, error) {
		code := otpQueue[0]
		if len(otpQueue) > 1 {
			otpQueue = otpQueue[1:]
		}
		return code, nil
	}
	return uc, repo, mail, clock
}

func register(t *testing.T, uc *AuthUsecase) string {
	t.Helper()
	token, err := uc.Register(context.Background(), "Ada", "ada@x.com", "secret1")
	require.NoError(t, err)
	return token
}

func TestRegister(t *testing.T) {
	uc, repo, mail, _ := newTestUsecase()

	token := register(t, uc)
	assert.NotEmpty(t, token)

	user := repo.mustFindByEmail(t, "ada@x.com")
	assert.False(t, user.IsVerified)
	assert.Empty(t, user.VerifyOtp)
	assert.True(t, user.VerifyOtpExpiresAt.IsZero())
	assert.Empty(t, user.ResetOtp)
	assert.True(t, user.ResetOtpExpiresAt.IsZero())
	assert.NotEqual(t, "secret1", user.Password)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secret1")))

	require.Len(t, mail.sent, 1)
	assert.Equal(t, "ada@x.com", mail.sent[0].to)
	assert.Contains(t, mail.sent[0].subject, "Welcome")
}

func TestRegisterMissingFields(t *testing.T) {
	uc, _, _, _ := newTestUsecase()

	for _, tc := range []struct{ name, email, password string }{
		{"", "ada@x.com", "secret1"},
		{"Ada", "", "secret1"},
		{"Ada", "ada@x.com", ""},
	} {
		_, err := uc.Register(context.Background(), tc.name, tc.email, tc.password)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	uc, _, _, _ := newTestUsecase()
	register(t, uc)

	_, err := uc.Register(context.Background(), "Other Ada", "ada@x.com", "secret2")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegisterMailFailureStillPersists(t *testing.T) {
	uc, repo, mail, _ := newTestUsecase()
	mail.fail = true

	_, err := uc.Register(context.Background(), "Ada", "ada@x.com", "secret1")
	require.ErrorIs(t, err, ErrDelivery)

	// The account was created before the send was attempted.
	user := repo.mustFindByEmail(t, "ada@x.com")
	assert.False(t, user.IsVerified)
}

func TestLogin(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	register(t, uc)
	before := *repo.mustFindByEmail(t, "ada@x.com")

	_, err := uc.Login(context.Background(), "ada@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, before, *repo.mustFindByEmail(t, "ada@x.com"))

	_, err = uc.Login(context.Background(), "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := uc.Login(context.Background(), "ada@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestAuthenticateAndLogout(t *testing.T) {
	uc, _, _, _ := newTestUsecase()
	register(t, uc)

	token, err := uc.Login(context.Background(), "ada@x.com", "secret1")
	require.NoError(t, err)

	userID, err := uc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.NotEmpty(t, userID)

	require.NoError(t, uc.Logout(context.Background(), token))

	_, err = uc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Garbage tokens log out without error.
	assert.NoError(t, uc.Logout(context.Background(), "not.a.jwt"))
}

func TestSendVerifyOtp(t *testing.T) {
	uc, repo, mail, clock := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")

	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))

	assert.Equal(t, "481923", user.VerifyOtp)
	assert.Equal(t, clock.current.Add(24*time.Hour), user.VerifyOtpExpiresAt)
	require.Len(t, mail.sent, 2)
	assert.Contains(t, mail.sent[1].body, "481923")
}

func TestSendVerifyOtpUnknownUser(t *testing.T) {
	uc, _, _, _ := newTestUsecase()

	assert.ErrorIs(t, uc.SendVerifyOtp(context.Background(), ""), ErrInvalidInput)
	assert.ErrorIs(t, uc.SendVerifyOtp(context.Background(), "not-a-hex-id"), ErrNotFound)
	assert.ErrorIs(t, uc.SendVerifyOtp(context.Background(), primitive.NewObjectID().Hex()), ErrNotFound)
}

func TestSendVerifyOtpAlreadyVerified(t *testing.T) {
	uc, repo, mail, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")

	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))
	require.NoError(t, uc.VerifyEmail(context.Background(), user.ID.Hex(), user.VerifyOtp))

	sentBefore := len(mail.sent)
	err := uc.SendVerifyOtp(context.Background(), user.ID.Hex())
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Empty(t, user.VerifyOtp)
	assert.Len(t, mail.sent, sentBefore)
}

func TestSendVerifyOtpMailFailureKeepsCode(t *testing.T) {
	uc, repo, mail, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	mail.fail = true

	err := uc.SendVerifyOtp(context.Background(), user.ID.Hex())
	require.ErrorIs(t, err, ErrDelivery)
	assert.Equal(t, "481923", user.VerifyOtp)
}

func TestVerifyEmail(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))
	code := user.VerifyOtp

	require.NoError(t, uc.VerifyEmail(context.Background(), user.ID.Hex(), code))
	assert.True(t, user.IsVerified)
	assert.Empty(t, user.VerifyOtp)
	assert.True(t, user.VerifyOtpExpiresAt.IsZero())

	// Replay with the consumed code: the slot is empty, so it is invalid.
	err := uc.VerifyEmail(context.Background(), user.ID.Hex(), code)
	assert.ErrorIs(t, err, ErrInvalidOtp)
	assert.True(t, user.IsVerified)
}

func TestVerifyEmailMismatch(t *testing.T) {
	uc, repo, _, clock := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))

	err := uc.VerifyEmail(context.Background(), user.ID.Hex(), "000000")
	assert.ErrorIs(t, err, ErrInvalidOtp)
	assert.False(t, user.IsVerified)
	assert.NotEmpty(t, user.VerifyOtp)

	// A wrong code reports invalid even when the challenge is also expired:
	// equality is checked before expiry.
	clock.current = clock.current.Add(48 * time.Hour)
	err = uc.VerifyEmail(context.Background(), user.ID.Hex(), "000000")
	assert.ErrorIs(t, err, ErrInvalidOtp)
}

func TestVerifyEmailExpiry(t *testing.T) {
	uc, repo, _, clock := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))
	code := user.VerifyOtp
	expiresAt := user.VerifyOtpExpiresAt

	clock.current = expiresAt.Add(time.Millisecond)
	err := uc.VerifyEmail(context.Background(), user.ID.Hex(), code)
	assert.ErrorIs(t, err, ErrOtpExpired)
	// Expiry alone does not clear the slot; a later re-request is needed.
	assert.Equal(t, code, user.VerifyOtp)
	assert.False(t, user.IsVerified)

	clock.current = expiresAt.Add(-time.Millisecond)
	require.NoError(t, uc.VerifyEmail(context.Background(), user.ID.Hex(), code))
	assert.True(t, user.IsVerified)
}

func TestVerifyEmailInputAndLookup(t *testing.T) {
	uc, _, _, _ := newTestUsecase()

	assert.ErrorIs(t, uc.VerifyEmail(context.Background(), "", "481923"), ErrInvalidInput)
	assert.ErrorIs(t, uc.VerifyEmail(context.Background(), primitive.NewObjectID().Hex(), ""), ErrInvalidInput)
	assert.ErrorIs(t, uc.VerifyEmail(context.Background(), primitive.NewObjectID().Hex(), "481923"), ErrNotFound)
}

func TestSendResetOtp(t *testing.T) {
	uc, repo, mail, clock := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")

	require.NoError(t, uc.SendResetOtp(context.Background(), "ada@x.com"))
	assert.Equal(t, "481923", user.ResetOtp)
	assert.Equal(t, clock.current.Add(15*time.Minute), user.ResetOtpExpiresAt)
	require.Len(t, mail.sent, 2)
	assert.Contains(t, mail.sent[1].body, "481923")

	assert.ErrorIs(t, uc.SendResetOtp(context.Background(), ""), ErrInvalidInput)
	assert.ErrorIs(t, uc.SendResetOtp(context.Background(), "nobody@x.com"), ErrNotFound)
}

func TestSendResetOtpTwiceInvalidatesFirst(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")

	require.NoError(t, uc.SendResetOtp(context.Background(), "ada@x.com"))
	firstCode := user.ResetOtp
	require.NoError(t, uc.SendResetOtp(context.Background(), "ada@x.com"))
	secondCode := user.ResetOtp
	require.NotEqual(t, firstCode, secondCode)

	err := uc.ResetPassword(context.Background(), "ada@x.com", firstCode, "newpass1")
	assert.ErrorIs(t, err, ErrInvalidOtp)

	require.NoError(t, uc.ResetPassword(context.Background(), "ada@x.com", secondCode, "newpass1"))
	_, err = uc.Login(context.Background(), "ada@x.com", "newpass1")
	assert.NoError(t, err)
}

func TestResetPassword(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendResetOtp(context.Background(), "ada@x.com"))
	code := user.ResetOtp

	require.NoError(t, uc.ResetPassword(context.Background(), "ada@x.com", code, "newpass1"))
	assert.Empty(t, user.ResetOtp)
	assert.True(t, user.ResetOtpExpiresAt.IsZero())

	_, err := uc.Login(context.Background(), "ada@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = uc.Login(context.Background(), "ada@x.com", "newpass1")
	assert.NoError(t, err)

	// The consumed code cannot be replayed.
	err = uc.ResetPassword(context.Background(), "ada@x.com", code, "anotherpass")
	assert.ErrorIs(t, err, ErrInvalidOtp)
}

func TestResetPasswordExpiry(t *testing.T) {
	uc, repo, _, clock := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendResetOtp(context.Background(), "ada@x.com"))
	code := user.ResetOtp
	expiresAt := user.ResetOtpExpiresAt

	clock.current = expiresAt.Add(time.Millisecond)
	err := uc.ResetPassword(context.Background(), "ada@x.com", code, "newpass1")
	assert.ErrorIs(t, err, ErrOtpExpired)
	assert.Equal(t, code, user.ResetOtp)

	clock.current = expiresAt.Add(-time.Millisecond)
	require.NoError(t, uc.ResetPassword(context.Background(), "ada@x.com", code, "newpass1"))
}

func TestResetPasswordInput(t *testing.T) {
	uc, _, _, _ := newTestUsecase()

	for _, tc := range []struct{ email, code, password string }{
		{"", "481923", "newpass1"},
		{"ada@x.com", "", "newpass1"},
		{"ada@x.com", "481923", ""},
	} {
		err := uc.ResetPassword(context.Background(), tc.email, tc.code, tc.password)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.ErrorIs(t, uc.ResetPassword(context.Background(), "nobody@x.com", "481923", "newpass1"), ErrNotFound)
}

func TestConcurrentConsumeOnlyOneWins(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	register(t, uc)
	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendVerifyOtp(context.Background(), user.ID.Hex()))
	code := user.VerifyOtp

	// Simulate the second of two concurrent consumers: it read a still-valid
	// slot, but by the time its conditional update runs the slot is gone.
	require.NoError(t, repo.ConsumeVerifyOtp(context.Background(), user.ID, code))
	err := repo.ConsumeVerifyOtp(context.Background(), user.ID, code)
	assert.ErrorIs(t, err, repository.ErrOtpMismatch)
}

func TestFullScenario(t *testing.T) {
	uc, repo, _, _ := newTestUsecase()
	ctx := context.Background()

	token, err := uc.Register(ctx, "Ada", "ada@x.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = uc.Login(ctx, "ada@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = uc.Login(ctx, "ada@x.com", "secret1")
	require.NoError(t, err)

	user := repo.mustFindByEmail(t, "ada@x.com")
	require.NoError(t, uc.SendVerifyOtp(ctx, user.ID.Hex()))
	require.Len(t, user.VerifyOtp, 6)
	require.Equal(t, 24*time.Hour, user.VerifyOtpExpiresAt.Sub(uc.now()))

	code := user.VerifyOtp
	require.NoError(t, uc.VerifyEmail(ctx, user.ID.Hex(), code))
	require.True(t, user.IsVerified)
	require.Empty(t, user.VerifyOtp)
	require.True(t, user.VerifyOtpExpiresAt.IsZero())

	err = uc.VerifyEmail(ctx, user.ID.Hex(), code)
	require.ErrorIs(t, err, ErrInvalidOtp)
}
