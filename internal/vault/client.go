package vault

import "context"

// Client is the set of vault operations a fetch needs. The session argument
// is the token returned by Unlock.
type Client interface {
	Logout(ctx context.Context) error
	Login(ctx context.Context) error
	// Unlock unlocks the vault with the password held in passwordEnv and
	// returns the session token.
	Unlock(ctx context.Context, passwordEnv string) (string, error)
	Sync(ctx context.Context, session string) error
	GetItem(ctx context.Context, session, id string) (Item, error)
	ListItems(ctx context.Context, session, collectionID string) ([]Item, error)
}

// Item is the part of a vault item printed by `bw get item` / `bw list items`
// that secret-loader reads. Other fields are ignored.
type Item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// SecretRecord is one retrieved secrets file: Name is the file name and
// Payload its full contents.
type SecretRecord struct {
	ID      string
	Name    string
	Payload string
}
