package core

import (
	"crypto/subtle"
	"strings"
	"time"
)

// minTokenLength is the shortest auth token the HTTP transport accepts.
const minTokenLength = 16

// weakTokenFragments are substrings that disqualify a token outright.
var weakTokenFragments = []string{
	"password", "secret", "token", "admin", "test", "default",
	"12345", "123456", "password123", "secret123", "admin123",
}

// SecureCompareString compares two strings in constant time.
func SecureCompareString(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateAuthToken rejects tokens that are empty, shorter than
// minTokenLength, or contain a known weak fragment. Called once at
// transport startup so a misconfigured deployment fails early.
func ValidateAuthToken(token string) error {
	if token == "" {
		return NewError(ErrInvalidParameter, "Authentication token cannot be empty").
			WithGuidance("Set an auth token before enabling HTTP authentication.")
	}
	if len(token) < minTokenLength {
		return NewError(ErrInvalidParameter, "Authentication token is too short").
			WithGuidance("Use a token of at least 16 characters.")
	}
	lower := strings.ToLower(token)
	for _, weak := range weakTokenFragments {
		if strings.Contains(lower, weak) {
			return NewError(ErrInvalidParameter, "Authentication token appears to be weak").
				WithGuidance("Generate the token randomly instead of deriving it from a word.")
		}
	}
	return nil
}

// AuthResult is the outcome of one authentication attempt.
type AuthResult struct {
	Authorized bool
	Error      string
	Duration   time.Duration
}

// AuthenticateBearer checks an Authorization header against the expected
// bearer token. A fixed delay on every exit keeps response timing from
// leaking which check failed.
func AuthenticateBearer(authHeader, expectedToken string) AuthResult {
	start := time.Now()
	defer time.Sleep(time.Millisecond)

	if authHeader == "" {
		return AuthResult{Error: "Missing Authorization header", Duration: time.Since(start)}
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return AuthResult{Error: "Invalid Authorization header format", Duration: time.Since(start)}
	}
	if !SecureCompareString(parts[1], expectedToken) {
		return AuthResult{Error: "Invalid bearer token", Duration: time.Since(start)}
	}
	return AuthResult{Authorized: true, Duration: time.Since(start)}
}

// AuthenticateBasic checks basic-auth credentials against the expected
// "user:password" string, with the same timing discipline as
// AuthenticateBearer.
func AuthenticateBasic(username, password, expectedCredentials string) AuthResult {
	start := time.Now()
	defer time.Sleep(time.Millisecond)

	if username == "" || password == "" {
		return AuthResult{Error: "Missing basic auth credentials", Duration: time.Since(start)}
	}
	if !SecureCompareString(username+":"+password, expectedCredentials) {
		return AuthResult{Error: "Invalid basic auth credentials", Duration: time.Since(start)}
	}
	return AuthResult{Authorized: true, Duration: time.Since(start)}
}
