package testutil

import (
	"os"
	"testing"
)

// SetupTestEnv sets process environment variables for the duration of a test.
// Previous values are restored, and variables that did not exist are unset,
// when the test completes.
//
// Tests calling it must not run in parallel.
func SetupTestEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	for key, value := range vars {
		orig, existed := os.LookupEnv(key)
		if err := os.Setenv(key, value); err != nil {
			t.Fatalf("Failed to set environment variable %s: %v", key, err)
		}

		key := key
		t.Cleanup(func() {
			if existed {
				_ = os.Setenv(key, orig)
				return
			}
			_ = os.Unsetenv(key)
		})
	}
}

// CredentialEnv returns the TH_BW_* variables for a complete credential set.
func CredentialEnv(clientID, clientSecret, password string) map[string]string {
	return map[string]string{
		"TH_BW_CLIENT_ID":     clientID,
		"TH_BW_CLIENT_SECRET": clientSecret,
		"TH_BW_PASSWORD":      password,
	}
}
