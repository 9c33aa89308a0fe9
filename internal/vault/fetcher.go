package vault

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	dserrors "github.com/systmms/secret-loader/internal/errors"
	"github.com/systmms/secret-loader/internal/logging"
)

// Mode selects how records are retrieved. It is fixed per deployment.
type Mode string

const (
	// ModeItemIDs fetches one item per configured id.
	ModeItemIDs Mode = "ids"
	// ModeCollection fetches every item of one collection.
	ModeCollection Mode = "collection"
)

// DefaultItemIDs are the production, staging, development and testing
// secrets items, in that order.
var DefaultItemIDs = []string{
	"55ce8907-9407-4514-bf09-b097012e798a",
	"eed0fab2-53d3-4489-982c-b097012e8c04",
	"a83af41a-dd02-4a64-b887-b09800deb316",
	"270527f9-fe9e-44d2-937e-b09800e81949",
}

// ReservedName is the generated ignore-list file; no record may use it.
const ReservedName = ".gitignore"

// Fetcher retrieves secret records through an open session.
type Fetcher struct {
	client       Client
	mode         Mode
	itemIDs      []string
	collectionID string
	logger       *logging.Logger
}

// NewItemFetcher fetches exactly the given item ids.
func NewItemFetcher(client Client, ids []string, logger *logging.Logger) *Fetcher {
	return &Fetcher{client: client, mode: ModeItemIDs, itemIDs: ids, logger: orDiscard(logger)}
}

// NewCollectionFetcher fetches every item of collectionID.
func NewCollectionFetcher(client Client, collectionID string, logger *logging.Logger) *Fetcher {
	return &Fetcher{client: client, mode: ModeCollection, collectionID: collectionID, logger: orDiscard(logger)}
}

// Mode returns the retrieval mode.
func (f *Fetcher) Mode() Mode {
	return f.mode
}

// FetchItems returns one record per retrieved item, in retrieval order.
func (f *Fetcher) FetchItems(ctx context.Context, session *Session) ([]SecretRecord, error) {
	token, err := session.Token()
	if err != nil {
		return nil, err
	}

	var items []Item
	switch f.mode {
	case ModeItemIDs:
		for _, id := range f.itemIDs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			item, err := f.client.GetItem(ctx, token, id)
			if err != nil {
				return nil, err
			}
			if item.ID == "" {
				item.ID = id
			}
			f.logger.Debug("Fetched item %s (%s)", id, item.Name)
			items = append(items, item)
		}
	case ModeCollection:
		items, err = f.client.ListItems(ctx, token, f.collectionID)
		if err != nil {
			return nil, err
		}
		f.logger.Debug("Fetched %d items from collection %s", len(items), f.collectionID)
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", f.mode)
	}

	return ToRecords(items)
}

// ToRecords validates items and converts them to records. Every item needs a
// name usable as a plain file name and non-empty notes; names must be unique.
func ToRecords(items []Item) ([]SecretRecord, error) {
	records := make([]SecretRecord, 0, len(items))
	seen := make(map[string]string, len(items))

	for _, item := range items {
		if err := validateName(item); err != nil {
			return nil, err
		}
		if item.Notes == "" {
			return nil, dserrors.MalformedRecordError{ID: item.ID, Name: item.Name, Reason: "item has no notes"}
		}
		if other, dup := seen[item.Name]; dup {
			return nil, dserrors.MalformedRecordError{
				ID:     item.ID,
				Name:   item.Name,
				Reason: fmt.Sprintf("name '%s' is also used by item %s", item.Name, other),
			}
		}
		seen[item.Name] = item.ID
		records = append(records, SecretRecord{ID: item.ID, Name: item.Name, Payload: item.Notes})
	}
	return records, nil
}

func validateName(item Item) error {
	name := item.Name
	var reason string
	switch {
	case strings.TrimSpace(name) == "":
		reason = "item has no name"
	case name == "." || name == "..":
		reason = fmt.Sprintf("name '%s' is not a file name", name)
	case strings.ContainsAny(name, `/\`) || filepath.Base(name) != name:
		reason = fmt.Sprintf("name '%s' contains a path separator", name)
	case name == ReservedName:
		reason = fmt.Sprintf("name '%s' is reserved", name)
	}
	if reason != "" {
		return dserrors.MalformedRecordError{ID: item.ID, Name: name, Reason: reason}
	}
	return nil
}

func orDiscard(l *logging.Logger) *logging.Logger {
	if l == nil {
		return logging.Discard()
	}
	return l
}
