package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	netmail "net/mail"
	"strings"
	"unicode/utf8"

	"github.com/isdelr/bookmarks-be/internal/apperr"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	maxNameLen       = 100
)

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return apperr.Validation(fmt.Sprintf("Username must be between %d and %d characters", minUsernameLen, maxUsernameLen))
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := netmail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return apperr.Validation("Invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func validateCollectionName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("Collection name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", apperr.Validation(fmt.Sprintf("Collection name must be at most %d characters", maxNameLen))
	}
	return name, nil
}

// newToken returns a random single-use token and the digest that is stored
// in its place.
func newToken() (token, digest string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Patch is a JSON object from a PATCH request. Fields are decoded one at a
// time: unknown keys are ignored and each known key is type checked alone.
type Patch map[string]json.RawMessage

// ParsePatch decodes a JSON object into a Patch.
func ParsePatch(data []byte) (Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil || p == nil {
		return nil, apperr.Validation("Request body must be a JSON object")
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// String decodes a non-null string field. ok is false if the field is absent.
func (p Patch) String(field string) (val string, ok bool, err error) {
	raw, present := p[field]
	if !present {
		return "", false, nil
	}
	if isNull(raw) {
		return "", true, apperr.Validation(field + " must be a string")
	}
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", true, apperr.Validation(field + " must be a string")
	}
	return val, true, nil
}

// NullableString decodes a string field that may be null. A null value
// yields a nil pointer with ok set.
func (p Patch) NullableString(field string) (val *string, ok bool, err error) {
	raw, present := p[field]
	if !present {
		return nil, false, nil
	}
	if isNull(raw) {
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, true, apperr.Validation(field + " must be a string or null")
	}
	return &s, true, nil
}
