package utils

import (
	"crypto/rand"
	"strings"
)

// ConfirmationAlphabet excludes the look-alikes 0/O and 1/I. Its length of 32
// divides 256, so mapping a random byte onto it carries no modulo bias.
const ConfirmationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const ConfirmationCodeLength = 8

// GenerateConfirmationCode returns a door code such as "K7QX2MPA". Codes are
// not guaranteed unique; the store enforces that and callers retry.
func GenerateConfirmationCode() (string, error) {
	return randomFromAlphabet(ConfirmationCodeLength, ConfirmationAlphabet)
}

var codeSeparators = strings.NewReplacer("-", "", " ", "")

// NormalizeConfirmationCode uppercases operator input and drops separators.
func NormalizeConfirmationCode(code string) string {
	return strings.ToUpper(codeSeparators.Replace(strings.TrimSpace(code)))
}

// IsConfirmationCode reports whether code has the generator's shape.
func IsConfirmationCode(code string) bool {
	if len(code) != ConfirmationCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(ConfirmationAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// GenerateID returns a lowercase alphanumeric id of n characters.
func GenerateID(n int) (string, error) {
	return randomFromAlphabet(n, "abcdefghijklmnopqrstuvwxyz0123456789")
}

func randomFromAlphabet(n int, alphabet string) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}

	return string(buf), nil
}
