// Package otp generates the six-digit one-time codes used for email
// verification and password reset challenges.
package otp

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 100000
	codeMax = 999999
)

// Generate returns a uniformly random code in ["100000","999999"].
// Codes are always exactly six digits and never start with a zero.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(codeMin+n.Int64(), 10), nil
}
