// Package storage holds the database-agnostic contract the loader runs
// against and a registry of concrete backends. Backends register themselves
// from init(); import dataloader/internal/storage/all to enable every
// built-in one.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"sync"

	"dataloader/internal/schema"
	"dataloader/internal/upsert"
)

// Dialect is everything the load pipeline needs to know about one database
// engine: catalog queries, command rendering, parameter binding and the
// per-file window toggles.
type Dialect interface {
	schema.Catalog
	upsert.Renderer

	Name() string
	// BindArg turns a converted value for p into a query argument.
	BindArg(p upsert.Param, v any) any
	// ConstraintChecks returns the statement enabling or disabling foreign-key
	// checking on table, or "" when the engine has none.
	ConstraintChecks(table string, enable bool) string
	// IdentityInsert returns the statement allowing or forbidding explicit
	// identity values for table, or "" when not needed.
	IdentityInsert(table string, allow bool) string
}

// OpenFunc validates dsn and returns a live connection pool.
type OpenFunc func(ctx context.Context, dsn string) (*sql.DB, error)

// Backend pairs a dialect with its connection opener.
type Backend struct {
	Dialect Dialect
	Open    OpenFunc
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes a backend available under kind. It replaces any previous
// registration and is normally called from a backend's init().
func Register(kind string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	backends[kind] = b
}

// Lookup returns the backend registered for kind.
func Lookup(kind string) (Backend, bool) {
	mu.RLock()
	defer mu.RUnlock()
	b, ok := backends[kind]
	return b, ok
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open connects to dsn with the backend registered for kind.
func Open(ctx context.Context, kind, dsn string) (*sql.DB, Dialect, error) {
	b, ok := Lookup(kind)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported storage kind %q (registered: %v)", kind, Kinds())
	}
	db, err := b.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", kind, err)
	}
	return db, b.Dialect, nil
}

// OpenSQL opens driverName and pings it, closing the pool on failure.
func OpenSQL(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

var passwordKV = regexp.MustCompile(`(?i)((?:password|pwd)\s*=\s*)[^;]*`)

// RedactDSN hides the password in URL and key=value connection strings.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		q := u.Query()
		for _, k := range []string{"password", "pwd"} {
			if q.Has(k) {
				q.Set(k, "xxxxx")
			}
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
	return passwordKV.ReplaceAllString(dsn, "${1}xxxxx")
}
