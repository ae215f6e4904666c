package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the account record. The two OTP challenge slots (verify, reset)
// are independent: a slot is outstanding iff its code is non-empty, and a
// code is always stored together with its expiry.
type User struct {
	ID                 primitive.ObjectID
	Name               string
	Email              string
	Password           string // bcrypt hash, never the plaintext
	IsVerified         bool
	VerifyOtp          string
	VerifyOtpExpiresAt time.Time
	ResetOtp           string
	ResetOtpExpiresAt  time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
