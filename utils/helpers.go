package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// CheckPassword compares a password with its hash
func CheckPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	switch role {
	case "owner", "admin", "counselor", "teacher":
		return true
	}
	return false
}

// SanitizeString removes null bytes and surrounding whitespace
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// DigitsOnly strips everything except 0-9 from a phone number.
func DigitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LikeEscapeChar is the ESCAPE character paired with ContainsPattern.
const LikeEscapeChar = "!"

// ContainsPattern wraps term for a `LIKE ? ESCAPE '!'` substring match with the
// wildcards in term matched literally.
func ContainsPattern(term string) string {
	r := strings.NewReplacer(LikeEscapeChar, LikeEscapeChar+LikeEscapeChar, "%", LikeEscapeChar+"%", "_", LikeEscapeChar+"_")
	return "%" + r.Replace(term) + "%"
}
