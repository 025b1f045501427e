package services

import (
	"crypto/rand"
	"math/big"
)

const (
	// ReferralCodeLength is the length of generated referral codes.
	ReferralCodeLength = 8

	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// maxCodeAttempts bounds retries after referral code collisions.
	maxCodeAttempts = 5
)

var alphabetSize = big.NewInt(int64(len(referralCodeAlphabet)))

// GenerateReferralCode returns a random code of ReferralCodeLength characters
// drawn uniformly from [A-Za-z0-9]. Uniqueness is enforced by the store.
func GenerateReferralCode() (string, error) {
	b := make([]byte, ReferralCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// validReferralCode reports whether code has the generated shape.
func validReferralCode(code string) bool {
	if len(code) != ReferralCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
