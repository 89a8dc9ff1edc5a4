package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomString returns a random lowercase hex string of 2*n characters.
func RandomString(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}

// RandomEmail returns a unique email address for test accounts.
func RandomEmail() string {
	return fmt.Sprintf("test-%s@example.com", RandomString(6))
}

// RandomUsername returns a unique username for test accounts.
func RandomUsername() string {
	return "user-" + RandomString(6)
}
