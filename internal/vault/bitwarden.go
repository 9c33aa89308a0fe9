package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
	"github.com/systmms/secret-loader/internal/telemetry"
	pkgexec "github.com/systmms/secret-loader/pkg/exec"
)

// DefaultCommand is the Bitwarden CLI binary.
const DefaultCommand = "bw"

// BitwardenCLI implements Client by running the Bitwarden CLI.
type BitwardenCLI struct {
	command  string
	prefix   []string // e.g. ["bw"] when command is "npx"
	executor pkgexec.CommandExecutor
	logger   *logging.Logger
	metrics  *telemetry.Metrics

	mu     sync.Mutex
	redact []string
}

// BitwardenOption configures a BitwardenCLI.
type BitwardenOption func(*BitwardenCLI)

// WithCommand runs name with prefix arguments instead of plain `bw`,
// for example WithCommand("npx", "bw").
func WithCommand(name string, prefix ...string) BitwardenOption {
	return func(bw *BitwardenCLI) {
		if name != "" {
			bw.command = name
		}
		bw.prefix = append([]string(nil), prefix...)
	}
}

// WithLogger sets the logger used for command tracing.
func WithLogger(l *logging.Logger) BitwardenOption {
	return func(bw *BitwardenCLI) { bw.logger = l }
}

// WithMetrics counts every invocation by subcommand.
func WithMetrics(m *telemetry.Metrics) BitwardenOption {
	return func(bw *BitwardenCLI) { bw.metrics = m }
}

// NewBitwardenCLI creates a client running commands through executor.
func NewBitwardenCLI(executor pkgexec.CommandExecutor, opts ...BitwardenOption) *BitwardenCLI {
	bw := &BitwardenCLI{
		command:  DefaultCommand,
		executor: executor,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(bw)
	}
	return bw
}

// AddRedaction scrubs values from any CLI output placed into errors.
func (bw *BitwardenCLI) AddRedaction(values ...string) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.redact = append(bw.redact, values...)
}

func (bw *BitwardenCLI) scrub(output []byte) string {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return logging.Redact(strings.TrimSpace(string(output)), bw.redact)
}

// Command returns the executable name, for PATH checks.
func (bw *BitwardenCLI) Command() string {
	return bw.command
}

func (bw *BitwardenCLI) Logout(ctx context.Context) error {
	_, err := bw.run(ctx, false, "", "logout")
	return err
}

func (bw *BitwardenCLI) Login(ctx context.Context) error {
	// --apikey reads BW_CLIENTID and BW_CLIENTSECRET from the environment
	_, err := bw.run(ctx, false, "", "login", "--apikey")
	return err
}

func (bw *BitwardenCLI) Unlock(ctx context.Context, passwordEnv string) (string, error) {
	out, err := bw.run(ctx, true, "", "unlock", "--passwordenv", passwordEnv)
	if err != nil {
		return "", err
	}
	token := ParseSessionToken(out)
	if token == "" {
		return "", dserrors.VaultCommandError{
			Command: "unlock",
			Err:     fmt.Errorf("no session token in unlock output"),
		}
	}
	bw.AddRedaction(token)
	return token, nil
}

func (bw *BitwardenCLI) Sync(ctx context.Context, session string) error {
	_, err := bw.run(ctx, false, session, "sync")
	return err
}

func (bw *BitwardenCLI) GetItem(ctx context.Context, session, id string) (Item, error) {
	out, err := bw.run(ctx, true, session, "get", "item", id)
	if err != nil {
		return Item{}, err
	}
	var item Item
	if err := json.Unmarshal(out, &item); err != nil {
		return Item{}, dserrors.VaultCommandError{
			Command: "get item " + id,
			Err:     fmt.Errorf("failed to parse item: %w", err),
		}
	}
	return item, nil
}

func (bw *BitwardenCLI) ListItems(ctx context.Context, session, collectionID string) ([]Item, error) {
	out, err := bw.run(ctx, true, session, "list", "items", "--collectionid", collectionID)
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, dserrors.VaultCommandError{
			Command: "list items --collectionid " + collectionID,
			Err:     fmt.Errorf("failed to parse item list: %w", err),
		}
	}
	return items, nil
}

// run executes one CLI call. When needOutput is set, empty stdout counts as failure.
func (bw *BitwardenCLI) run(ctx context.Context, needOutput bool, session string, args ...string) ([]byte, error) {
	label := strings.Join(args, " ")

	full := make([]string, 0, len(bw.prefix)+len(args)+2)
	full = append(full, bw.prefix...)
	full = append(full, args...)
	if session != "" {
		full = append(full, "--session", session)
	}

	bw.logger.Debug("Running %s %s", bw.command, label)
	stdout, stderr, err := bw.executor.Execute(ctx, bw.command, full...)
	bw.metrics.RecordVaultCommand(args[0], err)
	if err != nil {
		return nil, dserrors.VaultCommandError{
			Command:  label,
			ExitCode: pkgexec.ExitCode(err),
			Stderr:   bw.scrub(stderr),
			Err:      err,
		}
	}
	if needOutput && len(strings.TrimSpace(string(stdout))) == 0 {
		return nil, dserrors.VaultCommandError{
			Command: label,
			Stderr:  bw.scrub(stderr),
			Err:     fmt.Errorf("no output"),
		}
	}
	return stdout, nil
}

// ParseSessionToken extracts the token from `bw unlock` output: the last
// whitespace-separated token of the last non-empty line. Leading informational
// lines are ignored.
func ParseSessionToken(out []byte) string {
	lines := strings.Split(strings.TrimRight(string(out), " \t\r\n"), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	fields := strings.Fields(last)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
