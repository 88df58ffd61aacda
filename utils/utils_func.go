package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	verificationCodeMin = 100000
	verificationCodeMax = 999999
)

// GenerateVerificationCode returns a uniformly random 6-digit code.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationCodeMax-verificationCodeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+verificationCodeMin), nil
}
