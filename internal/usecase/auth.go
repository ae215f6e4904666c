// Package usecase implements the credential lifecycle: registration, login,
// session tokens, and the two time-boxed OTP workflows (email verification
// and password reset).
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azamatbayev/auth-service/internal/auth"
	"github.com/azamatbayev/auth-service/internal/entity"
	"github.com/azamatbayev/auth-service/internal/mailer"
	"github.com/azamatbayev/auth-service/internal/otp"
	"github.com/azamatbayev/auth-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("missing required fields")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidOtp         = errors.New("invalid OTP")
	ErrOtpExpired         = errors.New("OTP expired")
	ErrAlreadyVerified    = errors.New("account already verified")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDelivery           = errors.New("failed to send email")
)

const (
	verifyOtpTTL = 24 * time.Hour
	resetOtpTTL  = 15 * time.Minute
)

// Repository is the credential store contract. Each method is atomic with
// respect to the account record it touches; the two Consume methods must
// apply their effect and clear the challenge slot in one update, matching
// on the submitted code (repository.ErrOtpMismatch on a lost race).
type Repository interface {
	CreateUser(ctx context.Context, user *entity.User) (primitive.ObjectID, error)
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
	GetUserByID(ctx context.Context, userID primitive.ObjectID) (*entity.User, error)
	SaveVerifyOtp(ctx context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error
	ConsumeVerifyOtp(ctx context.Context, userID primitive.ObjectID, code string) error
	SaveResetOtp(ctx context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error
	ConsumeResetOtp(ctx context.Context, userID primitive.ObjectID, code, passwordHash string) error
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthUsecase struct {
	repo    Repository
	mailer  mailer.Mailer
	tokens  *auth.JWT
	appName string

	now    func() time.Time
	newOtp func() (string, error)
}

func NewAuthUsecase(repo Repository, m mailer.Mailer, tokens *auth.JWT, appName string) *AuthUsecase {
	return &AuthUsecase{
		repo:    repo,
		mailer:  m,
		tokens:  tokens,
		appName: appName,
		now:     time.Now,
		newOtp:  otp.Generate,
	}
}

// Register creates an unverified account, issues a session token, and sends
// a welcome email. A failed send is reported as an error even though the
// account has already been persisted at that point.
func (u *AuthUsecase) Register(ctx context.Context, name, email, password string) (string, error) {
	if name == "" || email == "" || password == "" {
		return "", ErrInvalidInput
	}

	if _, err := u.repo.GetUserByEmail(ctx, email); err == nil {
		return "", ErrAlreadyExists
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return "", err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	user := &entity.User{
		Name:     name,
		Email:    email,
		Password: string(hashedPassword),
	}
	userID, err := u.repo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", ErrAlreadyExists
		}
		return "", err
	}

	token, err := u.tokens.Issue(userID.Hex())
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	body := fmt.Sprintf("Welcome to %s. Your account has been successfully created with email ID: %s", u.appName, email)
	if err := u.mailer.Send(email, name, "Welcome to "+u.appName, body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	return token, nil
}

// Login authenticates an email/password pair and issues a fresh session
// token. Unknown email and wrong password are the same failure so the
// response does not leak which part was wrong.
func (u *AuthUsecase) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", ErrInvalidInput
	}

	user, err := u.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := u.tokens.Issue(user.ID.Hex())
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// Authenticate verifies a session token and returns the account id it
// carries. Denylisted tokens (logged out before their expiry) are rejected.
func (u *AuthUsecase) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := u.tokens.Verify(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	revoked, err := u.repo.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrUnauthorized
	}
	return claims.UserID, nil
}

// Logout denylists the session token until its own expiry. Cookie removal at
// the transport layer is the primary mechanism; an invalid or expired token
// is a no-op here.
func (u *AuthUsecase) Logout(ctx context.Context, token string) error {
	claims, err := u.tokens.Verify(token)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	return u.repo.RevokeToken(ctx, claims.ID, ttl)
}

// SendVerifyOtp issues a fresh email-verification challenge valid for 24
// hours. Once an account is verified no further code is ever generated.
// Re-requesting overwrites the outstanding challenge; only the latest code
// is valid. The code stays persisted even when the email send fails.
func (u *AuthUsecase) SendVerifyOtp(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	user, err := u.findByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	code, err := u.newOtp()
	if err != nil {
		return fmt.Errorf("generating OTP: %w", err)
	}
	if err := u.repo.SaveVerifyOtp(ctx, user.ID, code, u.now().Add(verifyOtpTTL)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	body := fmt.Sprintf("Your OTP is %s. Verify your account using this OTP. The code expires in 24 hours.", code)
	if err := u.mailer.Send(user.Email, user.Name, "Account verification OTP", body); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// VerifyEmail consumes a verification challenge. The equality check runs
// before the expiry check: a correct-but-expired code reports ErrOtpExpired,
// a wrong code reports ErrInvalidOtp even when the slot is also expired.
func (u *AuthUsecase) VerifyEmail(ctx context.Context, userID, code string) error {
	if userID == "" || code == "" {
		return ErrInvalidInput
	}
	user, err := u.findByID(ctx, userID)
	if err != nil {
		return err
	}

	if user.VerifyOtp == "" || user.VerifyOtp != code {
		return ErrInvalidOtp
	}
	if u.now().After(user.VerifyOtpExpiresAt) {
		return ErrOtpExpired
	}

	if err := u.repo.ConsumeVerifyOtp(ctx, user.ID, code); err != nil {
		if errors.Is(err, repository.ErrOtpMismatch) {
			return ErrInvalidOtp
		}
		return err
	}
	return nil
}

// SendResetOtp issues a fresh password-reset challenge valid for 15 minutes,
// a deliberately shorter window than verification.
func (u *AuthUsecase) SendResetOtp(ctx context.Context, email string) error {
	if email == "" {
		return ErrInvalidInput
	}
	user, err := u.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	code, err := u.newOtp()
	if err != nil {
		return fmt.Errorf("generating OTP: %w", err)
	}
	if err := u.repo.SaveResetOtp(ctx, user.ID, code, u.now().Add(resetOtpTTL)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	body := fmt.Sprintf("Your OTP is %s. Reset your password using this OTP. The code expires in 15 minutes.", code)
	if err := u.mailer.Send(user.Email, user.Name, "Password Reset OTP", body); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// ResetPassword consumes a reset challenge and replaces the password hash,
// with the same check ordering as VerifyEmail.
func (u *AuthUsecase) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if email == "" || code == "" || newPassword == "" {
		return ErrInvalidInput
	}
	user, err := u.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	if user.ResetOtp == "" || user.ResetOtp != code {
		return ErrInvalidOtp
	}
	if u.now().After(user.ResetOtpExpiresAt) {
		return ErrOtpExpired
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := u.repo.ConsumeResetOtp(ctx, user.ID, code, string(hashedPassword)); err != nil {
		if errors.Is(err, repository.ErrOtpMismatch) {
			return ErrInvalidOtp
		}
		return err
	}
	return nil
}

func (u *AuthUsecase) findByID(ctx context.Context, userID string) (*entity.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	user, err := u.repo.GetUserByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}
