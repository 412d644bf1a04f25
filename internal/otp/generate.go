package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var otpMax = big.NewInt(1_000_000) // 10^6 for 6-digit OTP

// Generate returns a cryptographically random, zero-padded 6-digit code.
// Used by the loopback self-test to send a code it can recognise.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("generate OTP: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
