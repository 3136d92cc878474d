package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/maxpert/publist/cfg"
	"github.com/maxpert/publist/publishlist"
	"github.com/rs/zerolog/log"
)

// ErrUnknownStoreType is returned by Open for an unsupported store type
var ErrUnknownStoreType = errors.New("unknown store type")

// Store persists publish lists.
//
// DeleteEntries removes the (user, resource) row of each entry, or every row
// of the resource when the entry has no user. WriteEntries upserts rows keyed
// by (user, resource). Each call is atomic.
type Store interface {
	publishlist.Driver

	// ListByUser returns the user's publish list ordered by resource id
	ListByUser(ctx context.Context, userID string) ([]publishlist.Entry, error)
	// ListByResource returns the rows of a resource ordered by user id
	ListByResource(ctx context.Context, resourceID string) ([]publishlist.Entry, error)

	Close() error
}

// Open creates the store selected by the configuration.
// Relative paths resolve against dataDir.
func Open(conf cfg.StoreConfiguration, dataDir string) (Store, error) {
	path := conf.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}

	log.Info().Str("type", string(conf.Type)).Str("path", path).Msg("Opening publish list store")

	switch conf.Type {
	case cfg.StoreSQLite:
		return NewSQLiteStore(path, SQLiteStoreOptions{
			BusyTimeoutMS: conf.BusyTimeoutMS,
			CacheSize:     conf.CacheSize,
		})
	case cfg.StorePebble:
		return NewPebbleStore(path)
	case cfg.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreType, conf.Type)
	}
}
