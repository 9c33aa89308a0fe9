// Package vault talks to the Bitwarden vault holding the secrets files.
//
// Client is the capability surface (logout, login, unlock, sync, get item,
// list items). BitwardenCLI implements it by running the `bw` CLI through a
// pkg/exec.CommandExecutor. SessionManager drives the login protocol and
// Fetcher turns vault items into SecretRecords.
//
// A session is never shared: every fetch starts with a forced logout and ends
// with a logout, successful or not.
package vault
