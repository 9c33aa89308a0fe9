package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeychainReader reads a credential set from an OS keychain.
type KeychainReader interface {
	Read(ctx context.Context) (Credentials, error)
}

// ErrKeychainItemNotFound is returned when an account is missing from the keychain.
var ErrKeychainItemNotFound = errors.New("keychain item not found")

// KeyringGetter is the subset of go-keyring used here.
type KeyringGetter func(service, account string) (string, error)

// Keychain reads the three credential fields as accounts of one keychain
// service (macOS Keychain, Secret Service on Linux, Windows Credential Manager).
type Keychain struct {
	service string
	get     KeyringGetter
}

// NewKeychain returns a reader for the given service name.
func NewKeychain(service string) *Keychain {
	return newKeychain(service, keyring.Get)
}

func newKeychain(service string, get KeyringGetter) *Keychain {
	return &Keychain{service: service, get: get}
}

// Read fetches TH_BW_CLIENT_ID, TH_BW_CLIENT_SECRET and TH_BW_PASSWORD accounts.
func (k *Keychain) Read(ctx context.Context) (Credentials, error) {
	var creds Credentials
	fields := []struct {
		account string
		dst     *string
	}{
		{EnvClientID, &creds.ClientID},
		{EnvClientSecret, &creds.ClientSecret},
		{EnvPassword, &creds.Password},
	}

	for _, f := range fields {
		if err := ctx.Err(); err != nil {
			return Credentials{}, err
		}
		value, err := k.get(k.service, f.account)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return Credentials{}, fmt.Errorf("%s/%s: %w", k.service, f.account, ErrKeychainItemNotFound)
			}
			return Credentials{}, fmt.Errorf("keychain lookup %s/%s failed: %w", k.service, f.account, err)
		}
		*f.dst = value
	}
	return creds, nil
}
