package utils

import (
	"crypto/rand"
	"math/big"
	"net/mail"
	"strings"
)

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const shortCodeCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Code lengths
const (
	ReferralCodeLength = 10
	ShortCodeLength    = 6
)

// GenerateReferralCode creates an upper-case alphanumeric referral code
func GenerateReferralCode(length int) (string, error) {
	return randomString(codeCharset, length)
}

// GenerateShortCode creates a mixed-case short link code
func GenerateShortCode() (string, error) {
	return randomString(shortCodeCharset, ShortCodeLength)
}

func randomString(charset string, length int) (string, error) {
	result := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}

// IsValidEmail checks if an email address is valid
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	return strings.Contains(domain, ".")
}

// EmailLocalPart returns the part of an address before the @
func EmailLocalPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
