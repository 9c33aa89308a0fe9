package credentials

// NewKeychainWithGetter builds a Keychain over a fake keyring.
func NewKeychainWithGetter(service string, get KeyringGetter) *Keychain {
	return newKeychain(service, get)
}
