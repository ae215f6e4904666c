package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/azamatbayev/auth-service/internal/entity"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	ErrDuplicateEmail = errors.New("email already exists")
	ErrUserNotFound   = errors.New("user not found")
	// ErrOtpMismatch is returned by the consume methods when the conditional
	// update matched no document: either the record is gone or the stored
	// code no longer equals the submitted one (consumed or overwritten by a
	// concurrent operation).
	ErrOtpMismatch = errors.New("otp does not match stored challenge")
)

type mongoUser struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Name               string             `bson:"name"`
	Email              string             `bson:"email"`
	Password           string             `bson:"password"`
	IsVerified         bool               `bson:"is_verified"`
	VerifyOtp          string             `bson:"verify_otp,omitempty"`
	VerifyOtpExpiresAt *time.Time         `bson:"verify_otp_expires_at,omitempty"`
	ResetOtp           string             `bson:"reset_otp,omitempty"`
	ResetOtpExpiresAt  *time.Time         `bson:"reset_otp_expires_at,omitempty"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

func (m *mongoUser) toEntity() *entity.User {
	u := &entity.User{
		ID:         m.ID,
		Name:       m.Name,
		Email:      m.Email,
		Password:   m.Password,
		IsVerified: m.IsVerified,
		VerifyOtp:  m.VerifyOtp,
		ResetOtp:   m.ResetOtp,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.VerifyOtpExpiresAt != nil {
		u.VerifyOtpExpiresAt = *m.VerifyOtpExpiresAt
	}
	if m.ResetOtpExpiresAt != nil {
		u.ResetOtpExpiresAt = *m.ResetOtpExpiresAt
	}
	return u
}

type UserRepository struct {
	db     *mongo.Database
	redis  *redis.Client
	logger *zap.Logger
}

func NewUserRepository(db *mongo.Database, rds *redis.Client, logger *zap.Logger) *UserRepository {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure indexes (idempotent operation)
	userCollection := db.Collection("users")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err := userCollection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		logger.Warn("Failed to create indexes for users collection (may already exist)", zap.Error(err))
	} else {
		logger.Info("Successfully ensured indexes for users collection")
	}

	return &UserRepository{
		db:     db,
		redis:  rds,
		logger: logger.Named("UserRepository"),
	}
}

// CreateUser inserts a new unverified account. The password must already be
// hashed by the caller. The unique email index turns races between two
// registrations for the same address into ErrDuplicateEmail.
func (r *UserRepository) CreateUser(ctx context.Context, user *entity.User) (primitive.ObjectID, error) {
	r.logger.Info("Attempting to create user in repository", zap.String("email", user.Email))

	now := time.Now()
	dbUser := &mongoUser{
		ID:         primitive.NewObjectID(),
		Name:       user.Name,
		Email:      user.Email,
		Password:   user.Password,
		IsVerified: false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !user.ID.IsZero() {
		dbUser.ID = user.ID
	}

	_, err := r.db.Collection("users").InsertOne(ctx, dbUser)
	if err != nil {
		var writeException mongo.WriteException
		if errors.As(err, &writeException) {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 && strings.Contains(writeError.Message, "email_1") {
					r.logger.Warn("Duplicate email during user creation", zap.String("email", user.Email), zap.Error(writeError))
					return primitive.NilObjectID, ErrDuplicateEmail
				}
			}
		}
		r.logger.Error("Database error during user creation", zap.String("email", user.Email), zap.Error(err))
		return primitive.NilObjectID, err
	}
	r.logger.Info("User created successfully in repository", zap.String("userID", dbUser.ID.Hex()))
	return dbUser.ID, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.logger.Debug("Attempting to get user by email from repository", zap.String("email", email))
	var dbUser mongoUser
	err := r.db.Collection("users").FindOne(ctx, bson.M{"email": email}).Decode(&dbUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database error fetching user by email", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return dbUser.toEntity(), nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID primitive.ObjectID) (*entity.User, error) {
	r.logger.Debug("Attempting to get user by ID from repository", zap.String("userID", userID.Hex()))
	var dbUser mongoUser
	err := r.db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&dbUser)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		r.logger.Error("Database error fetching user by ID", zap.String("userID", userID.Hex()), zap.Error(err))
		return nil, err
	}
	return dbUser.toEntity(), nil
}

// SaveVerifyOtp stores a fresh verification challenge, overwriting any
// outstanding one. Only the latest code is valid.
func (r *UserRepository) SaveVerifyOtp(ctx context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error {
	r.logger.Info("Saving verification OTP", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set": bson.M{
			"verify_otp":            code,
			"verify_otp_expires_at": expiresAt,
			"updated_at":            time.Now(),
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		r.logger.Error("DB error saving verification OTP", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeVerifyOtp marks the account verified and clears the verification
// challenge slot in a single conditional update. The filter includes the
// submitted code, so of two concurrent consumers only one can match; the
// loser gets ErrOtpMismatch.
func (r *UserRepository) ConsumeVerifyOtp(ctx context.Context, userID primitive.ObjectID, code string) error {
	r.logger.Info("Consuming verification OTP", zap.String("userID", userID.Hex()))
	filter := bson.M{"_id": userID, "verify_otp": code}
	update := bson.M{
		"$set": bson.M{
			"is_verified": true,
			"updated_at":  time.Now(),
		},
		"$unset": bson.M{
			"verify_otp":            "",
			"verify_otp_expires_at": "",
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("DB error consuming verification OTP", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		r.logger.Warn("Verification OTP no longer matches stored challenge", zap.String("userID", userID.Hex()))
		return ErrOtpMismatch
	}
	r.logger.Info("Email marked as verified", zap.String("userID", userID.Hex()))
	return nil
}

// SaveResetOtp stores a fresh password-reset challenge, overwriting any
// outstanding one.
func (r *UserRepository) SaveResetOtp(ctx context.Context, userID primitive.ObjectID, code string, expiresAt time.Time) error {
	r.logger.Info("Saving reset OTP", zap.String("userID", userID.Hex()))
	update := bson.M{
		"$set": bson.M{
			"reset_otp":            code,
			"reset_otp_expires_at": expiresAt,
			"updated_at":           time.Now(),
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		r.logger.Error("DB error saving reset OTP", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeResetOtp replaces the password hash and clears the reset challenge
// slot in a single conditional update, with the same concurrency contract as
// ConsumeVerifyOtp.
func (r *UserRepository) ConsumeResetOtp(ctx context.Context, userID primitive.ObjectID, code, passwordHash string) error {
	r.logger.Info("Consuming reset OTP", zap.String("userID", userID.Hex()))
	filter := bson.M{"_id": userID, "reset_otp": code}
	update := bson.M{
		"$set": bson.M{
			"password":   passwordHash,
			"updated_at": time.Now(),
		},
		"$unset": bson.M{
			"reset_otp":            "",
			"reset_otp_expires_at": "",
		},
	}
	result, err := r.db.Collection("users").UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("DB error consuming reset OTP", zap.String("userID", userID.Hex()), zap.Error(err))
		return err
	}
	if result.MatchedCount == 0 {
		r.logger.Warn("Reset OTP no longer matches stored challenge", zap.String("userID", userID.Hex()))
		return ErrOtpMismatch
	}
	r.logger.Info("Password updated successfully", zap.String("userID", userID.Hex()))
	return nil
}

// RevokeToken denylists a token id until the token's own expiry.
func (r *UserRepository) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to denylist
	}
	return r.redis.Set(ctx, "revoked:"+jti, "1", ttl).Err()
}

// IsTokenRevoked reports whether a token id has been denylisted.
func (r *UserRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := r.redis.Get(ctx, "revoked:"+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
