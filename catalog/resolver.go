package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/anidb/client"
	"github.com/luma/anidb/storage"
)

// Looker asks the API server about a file. *client.Conn is one.
type Looker interface {
	LookupByHash(ctx context.Context, size int64, ed2k string) (*client.File, error)
}

// Resolver answers lookups from its cache first and asks the server only on
// a miss. Found files are cached; unknown ones are not, as they may be added
// to the catalog later.
type Resolver struct {
	looker Looker
	cache  storage.Store

	log *zap.Logger
}

// NewResolver returns a Resolver. cache may be nil to always ask the server.
func NewResolver(looker Looker, cache storage.Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}

	return &Resolver{
		looker: looker,
		cache:  cache,
		log:    log,
	}
}

// Lookup returns the fields the catalog has for id, keyed as client.FileKeys.
func (r *Resolver) Lookup(ctx context.Context, id Identity) (map[string]interface{}, error) {
	f, err := r.lookup(ctx, id.normalized())
	if err != nil {
		return nil, err
	}

	return f.Fields(), nil
}

func (r *Resolver) lookup(ctx context.Context, id Identity) (*client.File, error) {
	log := r.log.With(zap.Int64("size", id.Size), zap.String("ed2k", id.ED2K))
	key := storage.FileKey(id.Size, id.ED2K)

	if r.cache != nil {
		f, err := r.cached(ctx, key)
		switch {
		case err == nil:
			log.Debug("Cache hit")
			return f, nil

		case !errors.Is(err, storage.ErrNotFound):
			log.Warn("Ignoring unreadable cache entry", zap.Error(err))
		}
	}

	f, err := r.looker.LookupByHash(ctx, id.Size, id.ED2K)
	if errors.Is(err, client.ErrNotFound) {
		log.Debug("Not in the catalog")
		return nil, err
	}

	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, f); err != nil {
			log.Warn("Failed to cache lookup", zap.Error(err))
		}
	}

	return f, nil
}

func (r *Resolver) cached(ctx context.Context, key string) (*client.File, error) {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var f client.File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}

	return &f, nil
}

// LookupFile hashes the file at path and looks it up. Besides the catalog
// fields the result carries the local "path" and its extension as "ext".
func (r *Resolver) LookupFile(ctx context.Context, path string) (map[string]interface{}, error) {
	id, err := IdentityOf(path)
	if err != nil {
		return nil, err
	}

	fields, err := r.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	fields["path"] = path
	fields["ext"] = strings.TrimPrefix(filepath.Ext(path), ".")

	return fields, nil
}

// LookupFiles looks up every path, collecting the failures. It stops early
// when the client can not continue, for example after a ban.
func (r *Resolver) LookupFiles(ctx context.Context, paths []string) (map[string]map[string]interface{}, error) {
	var (
		results = make(map[string]map[string]interface{}, len(paths))
		errs    error
	)

	for _, path := range paths {
		fields, err := r.LookupFile(ctx, path)
		if err != nil {
			errs = multierr.Append(errs, &LookupError{Path: path, Err: err})

			if client.IsFatal(err) || ctx.Err() != nil {
				return results, errs
			}

			continue
		}

		results[path] = fields
	}

	return results, errs
}

// LookupError ties a failed lookup to its file.
type LookupError struct {
	Path string
	Err  error
}

func (e *LookupError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
